package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/cluster"
)

// RegisterNode adds or refreshes a node in the cluster registry. The node
// hash expires after the liveness TTL unless refreshed by heartbeats, so
// crashed nodes fall out of the online set on their own.
func (s *Store) RegisterNode(ctx context.Context, n *cluster.Node) error {
	nID := n.ID.String()
	key := nodeKey(nID)

	lastSeen := n.LastSeen
	if lastSeen == 0 {
		lastSeen = pulse.NowMicro()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"id":        nID,
		"name":      n.Name,
		"role":      string(n.Role),
		"addr":      n.Addr,
		"last_seen": strconv.FormatInt(lastSeen, 10),
	})
	pipe.Expire(ctx, key, s.nodeTTL)
	pipe.SAdd(ctx, nodeIDsKey, nID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pulse/redis: register node: %w", err)
	}
	return nil
}

// DeregisterNode removes a node from the cluster registry.
func (s *Store) DeregisterNode(ctx context.Context, nodeID uuid.UUID) error {
	nID := nodeID.String()
	key := nodeKey(nID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("pulse/redis: deregister exists: %w", err)
	}
	if exists == 0 {
		return pulse.ErrNodeNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, nodeIDsKey, nID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pulse/redis: deregister node: %w", err)
	}
	return nil
}

// HeartbeatNode refreshes the last-seen timestamp and liveness TTL for a
// node.
func (s *Store) HeartbeatNode(ctx context.Context, nodeID uuid.UUID) error {
	key := nodeKey(nodeID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("pulse/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return pulse.ErrNodeNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "last_seen", strconv.FormatInt(pulse.NowMicro(), 10))
	pipe.Expire(ctx, key, s.nodeTTL)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pulse/redis: heartbeat node: %w", err)
	}
	return nil
}

// OnlineNodes returns the nodes of the given role whose hash has not
// expired. Stale entries in the id set are cleaned up lazily.
func (s *Store) OnlineNodes(ctx context.Context, role cluster.Role) ([]cluster.Node, error) {
	ids, err := s.client.SMembers(ctx, nodeIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("pulse/redis: online nodes: %w", err)
	}

	nodes := make([]cluster.Node, 0, len(ids))
	for _, nID := range ids {
		vals, getErr := s.client.HGetAll(ctx, nodeKey(nID)).Result()
		if getErr != nil {
			return nil, fmt.Errorf("pulse/redis: load node %s: %w", nID, getErr)
		}
		if len(vals) == 0 {
			// Hash expired: the node missed its heartbeats.
			s.client.SRem(ctx, nodeIDsKey, nID)
			continue
		}

		n, convErr := mapToNode(vals)
		if convErr != nil {
			s.logger.Warn("skipping malformed node entry",
				"id", nID,
				"error", convErr.Error(),
			)
			continue
		}
		if n.Role == role {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// mapToNode converts a node hash into a cluster.Node.
func mapToNode(vals map[string]string) (cluster.Node, error) {
	parsedID, err := uuid.Parse(vals["id"])
	if err != nil {
		return cluster.Node{}, fmt.Errorf("parse node id %q: %w", vals["id"], err)
	}

	lastSeen, err := strconv.ParseInt(vals["last_seen"], 10, 64)
	if err != nil {
		return cluster.Node{}, fmt.Errorf("parse last_seen %q: %w", vals["last_seen"], err)
	}

	return cluster.Node{
		ID:       parsedID,
		Name:     vals["name"],
		Role:     cluster.Role(vals["role"]),
		Addr:     vals["addr"],
		LastSeen: lastSeen,
	}, nil
}
