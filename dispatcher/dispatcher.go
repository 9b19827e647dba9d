// Package dispatcher defines the execution contract between the scheduler
// core and the per-module work implementations, plus a registry-backed Mux
// that routes each pulled trigger to the dispatcher registered for its
// module. The scheduler never inspects what a dispatcher does with a
// trigger; it only observes the returned error.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/id"
)

// Dispatcher executes one trigger. Implementations are expected to be
// idempotent under at-least-once delivery: an expired lease may cause the
// same trigger to be handed to another worker.
type Dispatcher interface {
	HandleTrigger(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) error
}

// Func adapts a plain function to the Dispatcher interface.
type Func func(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) error

// HandleTrigger implements Dispatcher.
func (f Func) HandleTrigger(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) error {
	return f(ctx, traceID, t)
}

// Registry maps trigger modules to their dispatchers. Safe for concurrent
// use; registration normally happens once at startup.
type Registry struct {
	mu sync.RWMutex
	m  map[pulse.Module]Dispatcher
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[pulse.Module]Dispatcher)}
}

// Register binds a dispatcher to a module, replacing any previous binding.
func (r *Registry) Register(module pulse.Module, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[module] = d
}

// Get returns the dispatcher for a module.
func (r *Registry) Get(module pulse.Module) (Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.m[module]
	return d, ok
}

// Mux routes triggers to the dispatcher registered for their module.
type Mux struct {
	registry *Registry
}

// NewMux creates a Mux over the given registry.
func NewMux(registry *Registry) *Mux {
	return &Mux{registry: registry}
}

// HandleTrigger implements Dispatcher by module lookup.
func (m *Mux) HandleTrigger(ctx context.Context, traceID id.TraceID, t *pulse.Trigger) error {
	d, ok := m.registry.Get(t.Module)
	if !ok {
		return fmt.Errorf("%w: %q", pulse.ErrNoDispatcher, t.Module)
	}
	return d.HandleTrigger(ctx, traceID, t)
}
