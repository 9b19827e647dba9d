// Package scheduler implements the concurrency-bounded trigger scheduler:
// a puller that leases due triggers from the store at the pool's spare
// capacity, a worker pool bounded by a counting semaphore, and an
// orchestrator that ties their lifecycles together with drain-based
// shutdown.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/dispatcher"
	"github.com/arcwatch/pulse/ext"
)

// Scheduler orchestrates the puller and the worker pool. At most
// Config.Concurrency dispatcher invocations are in flight across the
// whole pool at any instant.
type Scheduler struct {
	store      pulse.Store
	dispatcher dispatcher.Dispatcher
	logger     *slog.Logger
	hooks      *ext.Registry
	limiter    *OrgLimiter
	cfg        pulse.Config
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the whole configuration.
func WithConfig(cfg pulse.Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithConcurrency sets the maximum number of concurrent dispatches.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.cfg.Concurrency = n }
}

// WithPollInterval sets how often the puller checks for due triggers.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.cfg.PollInterval = d }
}

// WithTimeouts sets the lease durations handed to Pull for the short-lived
// and long-lived trigger modules respectively.
func WithTimeouts(alert, report time.Duration) Option {
	return func(s *Scheduler) {
		s.cfg.AlertTimeout = alert
		s.cfg.ReportTimeout = report
	}
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(r *ext.Registry) Option {
	return func(s *Scheduler) { s.hooks = r }
}

// WithOrgLimiter enables per-org rate limiting and concurrency caps.
func WithOrgLimiter(l *OrgLimiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// New creates a Scheduler.
func New(store pulse.Store, d dispatcher.Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:      store,
		dispatcher: d,
		logger:     logger,
		cfg:        pulse.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = ext.NewRegistry(logger)
	}
	return s
}

// Run spawns the worker pool and the puller and blocks until ctx is done.
// Shutdown is puller-first: once the puller exits, the channel is closed,
// the workers drain what was already forwarded, and in-flight dispatches
// run to completion. No forced cancellation is performed.
func (s *Scheduler) Run(ctx context.Context) error {
	ch := make(chan pulledTrigger, s.cfg.Concurrency)
	sem := newSemaphore(s.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := range s.cfg.Concurrency {
		w := &worker{
			idx:        i,
			sem:        sem,
			in:         ch,
			dispatcher: s.dispatcher,
			store:      s.store,
			limiter:    s.limiter,
			deferral:   s.cfg.PollInterval,
			hooks:      s.hooks,
			logger:     s.logger,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	s.logger.Info("scheduler started",
		slog.Int("concurrency", s.cfg.Concurrency),
		slog.Duration("poll_interval", s.cfg.PollInterval),
	)

	p := &puller{
		store:         s.store,
		sem:           sem,
		out:           ch,
		interval:      s.cfg.PollInterval,
		alertTimeout:  s.cfg.AlertTimeout,
		reportTimeout: s.cfg.ReportTimeout,
		hooks:         s.hooks,
		logger:        s.logger,
	}
	p.run(ctx)

	// Puller exited; signal the pool and wait for the drain.
	close(ch)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("worker drain exceeded shutdown timeout, still waiting",
			slog.Duration("shutdown_timeout", s.cfg.ShutdownTimeout),
		)
		<-done
	}

	s.hooks.EmitShutdown(context.WithoutCancel(ctx))
	s.logger.Info("scheduler stopped")
	return nil
}
