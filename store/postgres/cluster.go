package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/cluster"
)

// DefaultNodeTTL is how long a node counts as online after its last
// heartbeat.
const DefaultNodeTTL = 30 * time.Second

// RegisterNode adds or refreshes a node in the cluster registry.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	lastSeen := n.LastSeen
	if lastSeen == 0 {
		lastSeen = pulse.NowMicro()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pulse_nodes (id, name, role, addr, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			addr = EXCLUDED.addr,
			last_seen = EXCLUDED.last_seen`,
		n.ID.String(), n.Name, string(n.Role), n.Addr, lastSeen,
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: register node: %w", err)
	}
	return nil
}

// DeregisterNode removes a node from the cluster registry.
func (s *Store) DeregisterNode(ctx context.Context, nodeID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pulse_nodes WHERE id = $1`,
		nodeID.String(),
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: deregister node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrNodeNotFound
	}
	return nil
}

// HeartbeatNode updates the last-seen timestamp for a node.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pulse_nodes SET last_seen = $2 WHERE id = $1`,
		nodeID.String(), pulse.NowMicro(),
	)
	if err != nil {
		return fmt.Errorf("pulse/postgres: heartbeat node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pulse.ErrNodeNotFound
	}
	return nil
}

// OnlineNodes returns the nodes of the given role whose last heartbeat is
// within DefaultNodeTTL.
func (s *Store) OnlineNodes(ctx context.Context, role cluster.Role) ([]cluster.Node, error) {
	threshold := pulse.NowMicro() - DefaultNodeTTL.Microseconds()

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, addr, last_seen
		FROM pulse_nodes
		WHERE role = $1 AND last_seen >= $2
		ORDER BY id ASC`,
		string(role), threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("pulse/postgres: online nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]cluster.Node, 0)
	for rows.Next() {
		n, scanErr := scanNode(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("pulse/postgres: scan node row: %w", scanErr)
		}
		nodes = append(nodes, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pulse/postgres: iterate node rows: %w", err)
	}
	return nodes, nil
}

// scanNode scans a single node row.
func scanNode(row pgx.Row) (cluster.Node, error) {
	var (
		n       cluster.Node
		idStr   string
		roleStr string
	)
	err := row.Scan(&idStr, &n.Name, &roleStr, &n.Addr, &n.LastSeen)
	if err != nil {
		return cluster.Node{}, err
	}

	parsedID, parseErr := uuid.Parse(idStr)
	if parseErr != nil {
		return cluster.Node{}, fmt.Errorf("pulse/postgres: parse node id %q: %w", idStr, parseErr)
	}
	n.ID = parsedID
	n.Role = cluster.Role(roleStr)

	return n, nil
}
