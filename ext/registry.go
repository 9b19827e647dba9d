package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/id"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type triggerPulledEntry struct {
	name string
	hook TriggerPulled
}

type triggerDispatchedEntry struct {
	name string
	hook TriggerDispatched
}

type triggerCompletedEntry struct {
	name string
	hook TriggerCompleted
}

type triggerFailedEntry struct {
	name string
	hook TriggerFailed
}

type backfillCreatedEntry struct {
	name string
	hook BackfillCreated
}

type backfillPausedEntry struct {
	name string
	hook BackfillPaused
}

type backfillResumedEntry struct {
	name string
	hook BackfillResumed
}

type backfillUpdatedEntry struct {
	name string
	hook BackfillUpdated
}

type backfillDeletedEntry struct {
	name string
	hook BackfillDeleted
}

type retentionSweptEntry struct {
	name string
	hook RetentionSwept
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	triggerPulled     []triggerPulledEntry
	triggerDispatched []triggerDispatchedEntry
	triggerCompleted  []triggerCompletedEntry
	triggerFailed     []triggerFailedEntry
	backfillCreated   []backfillCreatedEntry
	backfillPaused    []backfillPausedEntry
	backfillResumed   []backfillResumedEntry
	backfillUpdated   []backfillUpdatedEntry
	backfillDeleted   []backfillDeletedEntry
	retentionSwept    []retentionSweptEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TriggerPulled); ok {
		r.triggerPulled = append(r.triggerPulled, triggerPulledEntry{name, h})
	}
	if h, ok := e.(TriggerDispatched); ok {
		r.triggerDispatched = append(r.triggerDispatched, triggerDispatchedEntry{name, h})
	}
	if h, ok := e.(TriggerCompleted); ok {
		r.triggerCompleted = append(r.triggerCompleted, triggerCompletedEntry{name, h})
	}
	if h, ok := e.(TriggerFailed); ok {
		r.triggerFailed = append(r.triggerFailed, triggerFailedEntry{name, h})
	}
	if h, ok := e.(BackfillCreated); ok {
		r.backfillCreated = append(r.backfillCreated, backfillCreatedEntry{name, h})
	}
	if h, ok := e.(BackfillPaused); ok {
		r.backfillPaused = append(r.backfillPaused, backfillPausedEntry{name, h})
	}
	if h, ok := e.(BackfillResumed); ok {
		r.backfillResumed = append(r.backfillResumed, backfillResumedEntry{name, h})
	}
	if h, ok := e.(BackfillUpdated); ok {
		r.backfillUpdated = append(r.backfillUpdated, backfillUpdatedEntry{name, h})
	}
	if h, ok := e.(BackfillDeleted); ok {
		r.backfillDeleted = append(r.backfillDeleted, backfillDeletedEntry{name, h})
	}
	if h, ok := e.(RetentionSwept); ok {
		r.retentionSwept = append(r.retentionSwept, retentionSweptEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Trigger event emitters
// ──────────────────────────────────────────────────

// EmitTriggerPulled notifies all extensions that implement TriggerPulled.
func (r *Registry) EmitTriggerPulled(ctx context.Context, byModule map[pulse.Module]int) {
	for _, e := range r.triggerPulled {
		if err := e.hook.OnTriggerPulled(ctx, byModule); err != nil {
			r.logHookError("OnTriggerPulled", e.name, err)
		}
	}
}

// EmitTriggerDispatched notifies all extensions that implement TriggerDispatched.
func (r *Registry) EmitTriggerDispatched(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) {
	for _, e := range r.triggerDispatched {
		if err := e.hook.OnTriggerDispatched(ctx, traceID, t); err != nil {
			r.logHookError("OnTriggerDispatched", e.name, err)
		}
	}
}

// EmitTriggerCompleted notifies all extensions that implement TriggerCompleted.
func (r *Registry) EmitTriggerCompleted(ctx context.Context, traceID id.TraceID, t *pulse.Trigger, elapsed time.Duration) {
	for _, e := range r.triggerCompleted {
		if err := e.hook.OnTriggerCompleted(ctx, traceID, t, elapsed); err != nil {
			r.logHookError("OnTriggerCompleted", e.name, err)
		}
	}
}

// EmitTriggerFailed notifies all extensions that implement TriggerFailed.
func (r *Registry) EmitTriggerFailed(ctx context.Context, traceID id.TraceID, t *pulse.Trigger, trigErr error) {
	for _, e := range r.triggerFailed {
		if err := e.hook.OnTriggerFailed(ctx, traceID, t, trigErr); err != nil {
			r.logHookError("OnTriggerFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Backfill event emitters
// ──────────────────────────────────────────────────

// EmitBackfillCreated notifies all extensions that implement BackfillCreated.
func (r *Registry) EmitBackfillCreated(ctx context.Context, org string, jobID id.BackfillJobID) {
	for _, e := range r.backfillCreated {
		if err := e.hook.OnBackfillCreated(ctx, org, jobID); err != nil {
			r.logHookError("OnBackfillCreated", e.name, err)
		}
	}
}

// EmitBackfillPaused notifies all extensions that implement BackfillPaused.
func (r *Registry) EmitBackfillPaused(ctx context.Context, org string, jobID id.BackfillJobID) {
	for _, e := range r.backfillPaused {
		if err := e.hook.OnBackfillPaused(ctx, org, jobID); err != nil {
			r.logHookError("OnBackfillPaused", e.name, err)
		}
	}
}

// EmitBackfillResumed notifies all extensions that implement BackfillResumed.
func (r *Registry) EmitBackfillResumed(ctx context.Context, org string, jobID id.BackfillJobID) {
	for _, e := range r.backfillResumed {
		if err := e.hook.OnBackfillResumed(ctx, org, jobID); err != nil {
			r.logHookError("OnBackfillResumed", e.name, err)
		}
	}
}

// EmitBackfillUpdated notifies all extensions that implement BackfillUpdated.
func (r *Registry) EmitBackfillUpdated(ctx context.Context, org string, jobID id.BackfillJobID) {
	for _, e := range r.backfillUpdated {
		if err := e.hook.OnBackfillUpdated(ctx, org, jobID); err != nil {
			r.logHookError("OnBackfillUpdated", e.name, err)
		}
	}
}

// EmitBackfillDeleted notifies all extensions that implement BackfillDeleted.
func (r *Registry) EmitBackfillDeleted(ctx context.Context, org string, jobID id.BackfillJobID) {
	for _, e := range r.backfillDeleted {
		if err := e.hook.OnBackfillDeleted(ctx, org, jobID); err != nil {
			r.logHookError("OnBackfillDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitRetentionSwept notifies all extensions that implement RetentionSwept.
func (r *Registry) EmitRetentionSwept(ctx context.Context, deleted int64) {
	for _, e := range r.retentionSwept {
		if err := e.hook.OnRetentionSwept(ctx, deleted); err != nil {
			r.logHookError("OnRetentionSwept", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate to the
// scheduling path.
func (r *Registry) logHookError(hook, extension string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extension),
		slog.String("error", err.Error()),
	)
}
