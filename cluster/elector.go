package cluster

import (
	"bytes"
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Elector decides, per tick, whether the local node should run a
// cluster-singleton task. The node holding the smallest UUID among the
// online peers of the required role is the leader.
//
// The election is best-effort and has no fencing token: when the peer
// cache is unavailable or empty, the local node assumes leadership,
// trading strict mutual exclusion for liveness in degraded or
// single-node scenarios. Gate only idempotent actions on it.
type Elector struct {
	cache  NodeCache
	self   uuid.UUID
	role   Role
	logger *slog.Logger
}

// NewElector creates an Elector for the local node identified by self.
func NewElector(cache NodeCache, self uuid.UUID, role Role, logger *slog.Logger) *Elector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elector{cache: cache, self: self, role: role, logger: logger}
}

// IsLeader reports whether the local node should proceed on this tick.
func (e *Elector) IsLeader(ctx context.Context) bool {
	nodes, err := e.cache.OnlineNodes(ctx, e.role)
	if err != nil {
		// Peer cache unavailable: assume leadership so the singleton
		// task keeps running when coordination is degraded.
		e.logger.Warn("peer cache unavailable, assuming leadership",
			slog.String("role", string(e.role)),
			slog.String("error", err.Error()),
		)
		return true
	}
	if len(nodes) == 0 {
		return true
	}

	sort.Slice(nodes, func(i, j int) bool {
		return bytes.Compare(nodes[i].ID[:], nodes[j].ID[:]) < 0
	})

	leader := nodes[0]
	if leader.ID == e.self {
		return true
	}

	e.logger.Debug("not the leader, skipping tick",
		slog.String("role", string(e.role)),
		slog.String("leader", leader.ID.String()),
		slog.String("self", e.self.String()),
	)
	return false
}
