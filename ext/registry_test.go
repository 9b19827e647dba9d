package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/ext"
	"github.com/arcwatch/pulse/id"
)

// recordingExt implements a subset of the hooks and counts invocations.
type recordingExt struct {
	dispatched int
	completed  int
	failed     int
	swept      int64
	hookErr    error
}

func (r *recordingExt) Name() string { return "recording" }

func (r *recordingExt) OnTriggerDispatched(context.Context, id.TraceID, *pulse.Trigger) error {
	r.dispatched++
	return r.hookErr
}

func (r *recordingExt) OnTriggerCompleted(context.Context, id.TraceID, *pulse.Trigger, time.Duration) error {
	r.completed++
	return nil
}

func (r *recordingExt) OnTriggerFailed(context.Context, id.TraceID, *pulse.Trigger, error) error {
	r.failed++
	return nil
}

func (r *recordingExt) OnRetentionSwept(_ context.Context, deleted int64) error {
	r.swept += deleted
	return nil
}

func TestRegistryEmitsToImplementedHooks(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())
	rec := &recordingExt{}
	reg.Register(rec)

	ctx := context.Background()
	tr := &pulse.Trigger{Org: "o1", Module: pulse.ModuleAlert, ModuleKey: "a1"}
	trace := id.NewTraceID()

	reg.EmitTriggerDispatched(ctx, trace, tr)
	reg.EmitTriggerCompleted(ctx, trace, tr, time.Millisecond)
	reg.EmitTriggerFailed(ctx, trace, tr, errors.New("boom"))
	reg.EmitRetentionSwept(ctx, 7)

	// Hooks the extension does not implement must be a no-op.
	reg.EmitBackfillCreated(ctx, "o1", id.NewBackfillJobID())
	reg.EmitShutdown(ctx)

	if rec.dispatched != 1 || rec.completed != 1 || rec.failed != 1 {
		t.Errorf("unexpected counts: dispatched=%d completed=%d failed=%d",
			rec.dispatched, rec.completed, rec.failed)
	}
	if rec.swept != 7 {
		t.Errorf("expected swept=7, got %d", rec.swept)
	}
}

func TestRegistryHookErrorDoesNotPropagate(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())
	rec := &recordingExt{hookErr: errors.New("hook failure")}
	reg.Register(rec)

	// Must not panic or block; the error is logged and swallowed.
	reg.EmitTriggerDispatched(context.Background(), id.NewTraceID(), &pulse.Trigger{})

	if rec.dispatched != 1 {
		t.Errorf("expected hook to run once, got %d", rec.dispatched)
	}
}

func TestRegistryNotificationOrder(t *testing.T) {
	reg := ext.NewRegistry(slog.Default())

	var order []string
	for _, name := range []string{"first", "second"} {
		reg.Register(&orderedExt{name: name, order: &order})
	}

	reg.EmitShutdown(context.Background())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected notification order: %v", order)
	}
}

type orderedExt struct {
	name  string
	order *[]string
}

func (o *orderedExt) Name() string { return o.name }

func (o *orderedExt) OnShutdown(context.Context) error {
	*o.order = append(*o.order, o.name)
	return nil
}
