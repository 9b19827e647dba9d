package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/dispatcher"
	"github.com/arcwatch/pulse/ext"
)

// worker consumes forwarded triggers, takes a permit, and invokes the
// dispatcher. A failing trigger is logged and swallowed; retry semantics
// are owned by the store's lease timeout and retries counter, not by the
// worker.
type worker struct {
	idx        int
	sem        *semaphore
	in         <-chan pulledTrigger
	dispatcher dispatcher.Dispatcher
	store      pulse.Store
	limiter    *OrgLimiter
	deferral   time.Duration
	hooks      *ext.Registry
	logger     *slog.Logger
}

// run drains the channel until it closes. Shutdown is drain-based: the
// parent ctx going away does not abort in-flight dispatches, it only
// stops new values from being carried on ctx.
func (w *worker) run(ctx context.Context) {
	for item := range w.in {
		w.process(ctx, item)
	}
}

func (w *worker) process(ctx context.Context, item pulledTrigger) {
	t := item.trigger

	// Dispatches started before shutdown run to completion, so the
	// dispatcher sees a context that survives cancellation of ctx.
	dispatchCtx := context.WithoutCancel(ctx)

	// Per-org admission. A limited trigger is deferred back to the
	// store instead of occupying the worker.
	if w.limiter != nil && !w.limiter.Acquire(t.Org) {
		w.deferTrigger(dispatchCtx, t)
		return
	}

	// The semaphore acquire ignores ctx cancellation for the same
	// drain reason. The puller's admission check makes sustained
	// waiting here rare, but races with releasing workers can still
	// cause a short block.
	_ = w.sem.acquire(context.Background())

	w.hooks.EmitTriggerDispatched(dispatchCtx, item.traceID, t)

	start := time.Now()
	err := w.dispatcher.HandleTrigger(dispatchCtx, item.traceID, t)
	elapsed := time.Since(start)

	if err != nil {
		w.logger.Error("handle trigger error",
			slog.String("org", t.Org),
			slog.String("module", string(t.Module)),
			slog.String("module_key", t.ModuleKey),
			slog.String("trace_id", item.traceID.String()),
			slog.String("error", err.Error()),
		)
		w.hooks.EmitTriggerFailed(dispatchCtx, item.traceID, t, err)
	} else {
		w.logger.Debug("trigger handled",
			slog.String("org", t.Org),
			slog.String("module", string(t.Module)),
			slog.String("module_key", t.ModuleKey),
			slog.String("trace_id", item.traceID.String()),
			slog.Duration("elapsed", elapsed),
		)
		w.hooks.EmitTriggerCompleted(dispatchCtx, item.traceID, t, elapsed)
	}

	w.sem.release()
	if w.limiter != nil {
		w.limiter.Release(t.Org)
	}
}

// deferTrigger returns a rate-limited trigger to waiting state with a
// short delay so another pull retries it once the org has headroom.
func (w *worker) deferTrigger(ctx context.Context, t *pulse.Trigger) {
	t.Status = pulse.StatusWaiting
	t.NextRunAt = pulse.NowMicro() + w.deferral.Microseconds()

	if err := w.store.Update(ctx, t, "org rate limited"); err != nil {
		w.logger.Error("failed to defer rate-limited trigger",
			slog.String("org", t.Org),
			slog.String("module_key", t.ModuleKey),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Debug("trigger deferred by org limiter",
		slog.String("org", t.Org),
		slog.String("module_key", t.ModuleKey),
	)
}
