package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/ext"
)

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Purger performs the bounded delete-older-than operation the retention
// sweep runs. pulse.Store satisfies it via PurgeCompletedBefore.
type Purger interface {
	PurgeCompletedBefore(ctx context.Context, cutoff int64) (int64, error)
}

// RetentionJob is a periodic cluster-singleton task: on each scheduled
// tick the leader deletes completed trigger rows older than the retention
// window. Sweep errors are logged, never propagated — the loop must stay
// alive, and the delete is idempotent so an occasional double-leader tick
// is harmless.
type RetentionJob struct {
	elector   *Elector
	purger    Purger
	schedule  cronlib.Schedule
	retention time.Duration
	hooks     *ext.Registry
	logger    *slog.Logger
}

// RetentionOption configures a RetentionJob.
type RetentionOption func(*RetentionJob)

// WithRetention sets how long completed trigger rows are kept.
func WithRetention(d time.Duration) RetentionOption {
	return func(j *RetentionJob) { j.retention = d }
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(r *ext.Registry) RetentionOption {
	return func(j *RetentionJob) { j.hooks = r }
}

// NewRetentionJob creates a RetentionJob firing on the given cron
// schedule expression.
func NewRetentionJob(elector *Elector, purger Purger, schedule string, logger *slog.Logger, opts ...RetentionOption) (*RetentionJob, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("cluster: invalid retention schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &RetentionJob{
		elector:   elector,
		purger:    purger,
		schedule:  sched,
		retention: 30 * 24 * time.Hour,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.hooks == nil {
		j.hooks = ext.NewRegistry(logger)
	}
	return j, nil
}

// Run blocks until ctx is done, sweeping on each scheduled fire.
func (j *RetentionJob) Run(ctx context.Context) {
	j.logger.Info("retention job started",
		slog.Duration("retention", j.retention),
	)

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("retention job stopped")
			return
		case <-timer.C:
		}

		j.sweep(ctx)
	}
}

// sweep runs one leader-gated retention pass.
func (j *RetentionJob) sweep(ctx context.Context) {
	if !j.elector.IsLeader(ctx) {
		return
	}

	cutoff := time.Now().Add(-j.retention).UTC().UnixMicro()
	deleted, err := j.purger.PurgeCompletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("retention sweep error",
			slog.Int64("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return
	}

	if deleted > 0 {
		j.logger.Info("retention sweep removed expired triggers",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", pulse.MicroTime(cutoff)),
		)
	}
	j.hooks.EmitRetentionSwept(ctx, deleted)
}
