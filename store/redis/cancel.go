package redis

import (
	"context"
	"fmt"
	"time"
)

// cancelMarkerTTL bounds how long a cancellation marker lingers when no
// executor ever picks it up.
const cancelMarkerTTL = 10 * time.Minute

// CancelQuery marks the query identified by traceID as cancelled. A
// marker key is written for executors that poll, and the trace id is
// published for executors that subscribe. Cancelling an unknown or
// already-finished query is a no-op.
func (s *Store) CancelQuery(ctx context.Context, traceID string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, cancelKey(traceID), "1", cancelMarkerTTL)
	pipe.Publish(ctx, cancelChannel, traceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pulse/redis: cancel query: %w", err)
	}
	return nil
}

// IsQueryCancelled reports whether a cancellation marker exists for
// traceID. Query executors poll this between scan steps.
func (s *Store) IsQueryCancelled(ctx context.Context, traceID string) (bool, error) {
	n, err := s.client.Exists(ctx, cancelKey(traceID)).Result()
	if err != nil {
		return false, fmt.Errorf("pulse/redis: check cancel marker: %w", err)
	}
	return n > 0, nil
}
