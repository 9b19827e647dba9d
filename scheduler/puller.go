package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/ext"
	"github.com/arcwatch/pulse/id"
)

// pulledTrigger pairs a leased trigger with the trace id that follows it
// through dispatch.
type pulledTrigger struct {
	traceID id.TraceID
	trigger *pulse.Trigger
}

// puller polls the store on an interval and forwards leased triggers to
// the worker pool. It never requests more triggers than there are free
// permits, which makes it the store-side backpressure point; the worker
// side is bounded by the semaphore itself.
type puller struct {
	store pulse.Store
	sem   *semaphore
	out   chan<- pulledTrigger

	interval      time.Duration
	alertTimeout  time.Duration
	reportTimeout time.Duration

	hooks  *ext.Registry
	logger *slog.Logger
}

// run loops until ctx is done. Pull errors are logged and treated as an
// empty tick; they never stop the loop.
func (p *puller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		free := p.sem.available()
		if free == 0 {
			// Pool saturated; skip this tick entirely.
			continue
		}

		triggers, err := p.store.Pull(ctx, free, p.alertTimeout, p.reportTimeout)
		if err != nil {
			p.logger.Error("pull triggers error", slog.String("error", err.Error()))
			continue
		}
		if len(triggers) == 0 {
			continue
		}

		byModule := make(map[pulse.Module]int, len(triggers))
		for _, t := range triggers {
			byModule[t.Module]++
		}
		p.logger.Info("pulled triggers",
			slog.Int("count", len(triggers)),
			slog.Any("by_module", byModule),
		)
		p.hooks.EmitTriggerPulled(ctx, byModule)

		for _, t := range triggers {
			item := pulledTrigger{traceID: id.NewTraceID(), trigger: t}
			select {
			case p.out <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}
