// Package ext defines the extension system for pulse.
// Extensions are notified of lifecycle events (trigger dispatched,
// completed, backfill created, etc.) and can react to them — logging,
// metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/id"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Trigger lifecycle hooks
// ──────────────────────────────────────────────────

// TriggerPulled is called after the puller leases a batch of triggers.
type TriggerPulled interface {
	OnTriggerPulled(ctx context.Context, byModule map[pulse.Module]int) error
}

// TriggerDispatched is called when a worker begins executing a trigger.
type TriggerDispatched interface {
	OnTriggerDispatched(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) error
}

// TriggerCompleted is called after a dispatcher invocation succeeds.
type TriggerCompleted interface {
	OnTriggerCompleted(ctx context.Context, traceID id.TraceID, t *pulse.Trigger, elapsed time.Duration) error
}

// TriggerFailed is called when a dispatcher invocation returns an error.
// The failure is swallowed by the worker; this hook is its only direct
// observable effect.
type TriggerFailed interface {
	OnTriggerFailed(ctx context.Context, traceID id.TraceID, t *pulse.Trigger, err error) error
}

// ──────────────────────────────────────────────────
// Backfill lifecycle hooks
// ──────────────────────────────────────────────────

// BackfillCreated is called after a backfill job is created.
type BackfillCreated interface {
	OnBackfillCreated(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// BackfillPaused is called after a backfill job is paused.
type BackfillPaused interface {
	OnBackfillPaused(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// BackfillResumed is called after a backfill job is resumed.
type BackfillResumed interface {
	OnBackfillResumed(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// BackfillUpdated is called after a backfill job is reconfigured.
type BackfillUpdated interface {
	OnBackfillUpdated(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// BackfillDeleted is called after a backfill job is deleted.
type BackfillDeleted interface {
	OnBackfillDeleted(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// RetentionSwept is called after the leader's retention sweep removes
// expired trigger rows.
type RetentionSwept interface {
	OnRetentionSwept(ctx context.Context, deleted int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
