// Package cluster provides the coordination primitives for singleton
// periodic work: a node model, a cached view of online peers, best-effort
// min-UUID leader election, and the leader-gated retention sweep.
package cluster

import (
	"context"

	"github.com/google/uuid"
)

// Role is the function a node serves in the cluster.
type Role string

const (
	// RoleIngester nodes accept and index incoming data.
	RoleIngester Role = "ingester"
	// RoleQuerier nodes serve search queries.
	RoleQuerier Role = "querier"
	// RoleCompactor nodes merge and expire stored segments.
	RoleCompactor Role = "compactor"
	// RoleScheduler nodes run the trigger scheduler.
	RoleScheduler Role = "scheduler"
)

// Node describes one cluster member. The UUID is assigned once at node
// startup and is the stable identity leader election sorts on.
type Node struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	Addr     string    `json:"addr,omitempty"`
	LastSeen int64     `json:"last_seen"`
}

// NodeCache is a cached view of currently-online peers. Implementations
// are allowed to be stale; callers that need exclusivity must tolerate a
// brief two-leader window (see Elector).
type NodeCache interface {
	// OnlineNodes returns the online nodes holding the given role.
	OnlineNodes(ctx context.Context, role Role) ([]Node, error)
}
