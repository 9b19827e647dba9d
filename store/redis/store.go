// Package redis implements the pulse node cache and query cancellation
// primitives on Redis. Nodes are stored as Hashes with a liveness TTL;
// query cancellation uses a marker key plus a pub/sub notification.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcwatch/pulse/backfill"
	"github.com/arcwatch/pulse/cluster"
)

// DefaultNodeTTL is how long a node counts as online after its last
// heartbeat.
const DefaultNodeTTL = 30 * time.Second

// Compile-time interface checks.
var (
	_ cluster.NodeCache      = (*Store)(nil)
	_ backfill.QueryCanceler = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNodeTTL overrides the node liveness TTL.
func WithNodeTTL(ttl time.Duration) Option {
	return func(s *Store) { s.nodeTTL = ttl }
}

// Store is a Redis-backed node cache and query canceler.
type Store struct {
	client  redis.UniversalClient
	nodeTTL time.Duration
	logger  *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:  client,
		nodeTTL: DefaultNodeTTL,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close(_ context.Context) error { return nil }
