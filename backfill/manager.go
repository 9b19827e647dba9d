// Package backfill implements the backfill job state machine on top of
// the trigger abstraction. A job persists a static JobConfig row plus a
// dynamic BackfillJob record embedded in its trigger payload; the manager
// mutates both through create/cancel/resume/update/delete while the
// per-chunk dispatcher advances the progress cursor between pulls.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/ext"
	"github.com/arcwatch/pulse/id"
)

const (
	// DefaultChunkPeriodMinutes is used when a request omits the chunk
	// period.
	DefaultChunkPeriodMinutes int64 = 60

	// DefaultMaxExecutionTimeSecs bounds a single chunk execution.
	DefaultMaxExecutionTimeSecs int64 = 3600
)

// Request carries the caller-supplied job parameters for create and
// update. Zero ChunkPeriodMinutes means DefaultChunkPeriodMinutes.
type Request struct {
	StartTime              int64 `json:"start_time"`
	EndTime                int64 `json:"end_time"`
	ChunkPeriodMinutes     int64 `json:"chunk_period_minutes,omitempty"`
	DelayBetweenChunksSecs int64 `json:"delay_between_chunks_secs,omitempty"`
	DeleteBeforeBackfill   bool  `json:"delete_before_backfill"`
}

// ModuleKey builds the trigger module key of a backfill job.
func ModuleKey(org, pipelineID string, jobID id.BackfillJobID) string {
	return fmt.Sprintf("%s/%s/%s", org, pipelineID, jobID)
}

// Manager owns backfill job CRUD and state transitions. It writes and
// reads trigger rows directly, bypassing the puller; once a job's trigger
// is waiting it re-enters the normal puller/worker path on its own
// schedule.
type Manager struct {
	triggers  pulse.Store
	configs   ConfigStore
	pipelines PipelineResolver
	queries   QueryCanceler
	hooks     *ext.Registry
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithQueryCanceler sets the canceler used to stop in-flight chunk
// queries on job deletion.
func WithQueryCanceler(q QueryCanceler) Option {
	return func(m *Manager) { m.queries = q }
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(r *ext.Registry) Option {
	return func(m *Manager) { m.hooks = r }
}

// NewManager creates a Manager.
func NewManager(triggers pulse.Store, configs ConfigStore, pipelines PipelineResolver, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		triggers:  triggers,
		configs:   configs,
		pipelines: pipelines,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hooks == nil {
		m.hooks = ext.NewRegistry(logger)
	}
	return m
}

// validateRange checks the create/update time range rules: the range must
// be non-empty and must not extend into the future.
func validateRange(startTime, endTime int64) error {
	if startTime >= endTime {
		return pulse.ErrInvalidTimeRange
	}
	if endTime > pulse.NowMicro() {
		return pulse.ErrEndTimeInFuture
	}
	return nil
}

// Create validates the request, persists the config row, and pushes a
// waiting trigger scheduled immediately.
func (m *Manager) Create(ctx context.Context, org, pipelineID string, req Request) (*JobStatus, error) {
	p, err := m.pipelines.GetPipeline(ctx, org, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("backfill: resolve pipeline %q: %w", pipelineID, err)
	}
	if !p.Scheduled {
		return nil, pulse.ErrPipelineNotScheduled
	}
	if err := validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	chunkPeriod := req.ChunkPeriodMinutes
	if chunkPeriod <= 0 {
		chunkPeriod = DefaultChunkPeriodMinutes
	}

	jobID := id.NewBackfillJobID()
	now := pulse.NowMicro()

	cfg := &JobConfig{
		ID:                     jobID,
		Org:                    org,
		PipelineID:             pipelineID,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		ChunkPeriodMinutes:     chunkPeriod,
		DelayBetweenChunksSecs: req.DelayBetweenChunksSecs,
		DeleteBeforeBackfill:   req.DeleteBeforeBackfill,
		CreatedAt:              now,
	}
	if err := m.configs.PutJobConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("backfill: persist job config: %w", err)
	}

	deletion := pulse.DeletionStatus{State: pulse.DeletionNotRequired}
	if req.DeleteBeforeBackfill {
		deletion = pulse.DeletionStatus{State: pulse.DeletionPending}
	}

	job := &pulse.BackfillJob{
		ID:                     jobID.String(),
		SourcePipelineID:       pipelineID,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		CurrentPosition:        req.StartTime,
		ChunkPeriodMinutes:     chunkPeriod,
		DelayBetweenChunksSecs: req.DelayBetweenChunksSecs,
		MaxExecutionTimeSecs:   DefaultMaxExecutionTimeSecs,
		DeleteBeforeBackfill:   req.DeleteBeforeBackfill,
		DeletionStatus:         deletion,
	}

	t := &pulse.Trigger{
		Org:       org,
		Module:    pulse.ModuleBackfill,
		ModuleKey: ModuleKey(org, pipelineID, jobID),
		NextRunAt: now,
		Status:    pulse.StatusWaiting,
		Data:      pulse.BackfillPayload(job),
		CreatedAt: now,
	}
	if err := m.triggers.Push(ctx, t); err != nil {
		// Don't leave an orphan config row behind.
		if delErr := m.configs.DeleteJobConfig(ctx, org, jobID); delErr != nil {
			m.logger.Warn("failed to roll back job config",
				slog.String("org", org),
				slog.String("job_id", jobID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("backfill: push trigger: %w", err)
	}

	m.logger.Info("backfill job created",
		slog.String("org", org),
		slog.String("pipeline_id", pipelineID),
		slog.String("job_id", jobID.String()),
	)
	m.hooks.EmitBackfillCreated(ctx, org, jobID)

	return newJobStatus(t, job, p.Name), nil
}

// resolve loads the config row and the matching trigger for a job.
// Either missing maps to pulse.ErrJobNotFound.
func (m *Manager) resolve(ctx context.Context, org string, jobID id.BackfillJobID) (*JobConfig, *pulse.Trigger, error) {
	cfg, err := m.configs.GetJobConfig(ctx, org, jobID)
	if err != nil {
		return nil, nil, err
	}

	t, err := m.triggers.Get(ctx, org, pulse.ModuleBackfill, ModuleKey(org, cfg.PipelineID, jobID))
	if err != nil {
		if errors.Is(err, pulse.ErrTriggerNotFound) {
			return nil, nil, pulse.ErrJobNotFound
		}
		return nil, nil, fmt.Errorf("backfill: get trigger: %w", err)
	}
	return cfg, t, nil
}

// Get returns the read model of a single job.
func (m *Manager) Get(ctx context.Context, org string, jobID id.BackfillJobID) (*JobStatus, error) {
	cfg, t, err := m.resolve(ctx, org, jobID)
	if err != nil {
		return nil, err
	}

	job := t.BackfillJob()
	if job == nil {
		return nil, fmt.Errorf("backfill: trigger %s carries no backfill payload", t.ModuleKey)
	}
	return newJobStatus(t, job, m.pipelineName(ctx, org, cfg.PipelineID)), nil
}

// List returns the read models of all backfill jobs in an org, oldest
// first. Triggers with undecodable payloads are skipped with a warning
// rather than failing the whole listing.
func (m *Manager) List(ctx context.Context, org string) ([]*JobStatus, error) {
	triggers, err := m.triggers.ListByOrg(ctx, org, pulse.ModuleBackfill)
	if err != nil {
		return nil, fmt.Errorf("backfill: list triggers: %w", err)
	}

	statuses := make([]*JobStatus, 0, len(triggers))
	for _, t := range triggers {
		job := t.BackfillJob()
		if job == nil {
			m.logger.Warn("skipping backfill trigger without payload",
				slog.String("org", org),
				slog.String("module_key", t.ModuleKey),
			)
			continue
		}
		statuses = append(statuses, newJobStatus(t, job, m.pipelineName(ctx, org, job.SourcePipelineID)))
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].CreatedAt < statuses[j].CreatedAt
	})
	return statuses, nil
}

// pipelineName resolves a pipeline's display name, best effort.
func (m *Manager) pipelineName(ctx context.Context, org, pipelineID string) string {
	p, err := m.pipelines.GetPipeline(ctx, org, pipelineID)
	if err != nil {
		return ""
	}
	return p.Name
}

// Cancel pauses a job: the trigger moves to paused while the progress
// cursor and deletion status stay untouched, so the job can be resumed.
// Canceling an already-paused job is a no-op.
func (m *Manager) Cancel(ctx context.Context, org string, jobID id.BackfillJobID) error {
	_, t, err := m.resolve(ctx, org, jobID)
	if err != nil {
		return err
	}

	switch t.Status {
	case pulse.StatusCompleted:
		return pulse.ErrJobCompleted
	case pulse.StatusPaused:
		return nil
	}

	if err := m.triggers.UpdateStatus(ctx, org, pulse.ModuleBackfill, t.ModuleKey, pulse.StatusPaused, t.Retries, nil); err != nil {
		return fmt.Errorf("backfill: pause trigger: %w", err)
	}

	m.logger.Info("backfill job paused",
		slog.String("org", org),
		slog.String("job_id", jobID.String()),
	)
	m.hooks.EmitBackfillPaused(ctx, org, jobID)
	return nil
}

// Resume reschedules a paused job immediately. It fails with
// ErrJobNotPaused unless the job is paused, and with ErrJobCompleted when
// the cursor has already reached the end of the range.
func (m *Manager) Resume(ctx context.Context, org string, jobID id.BackfillJobID) error {
	_, t, err := m.resolve(ctx, org, jobID)
	if err != nil {
		return err
	}

	if t.Status == pulse.StatusCompleted {
		return pulse.ErrJobCompleted
	}
	if t.Status != pulse.StatusPaused {
		return pulse.ErrJobNotPaused
	}

	job := t.BackfillJob()
	if job == nil {
		return fmt.Errorf("backfill: trigger %s carries no backfill payload", t.ModuleKey)
	}
	if job.Done() {
		return pulse.ErrJobCompleted
	}

	t.Status = pulse.StatusWaiting
	t.NextRunAt = pulse.NowMicro()
	if err := m.triggers.Update(ctx, t, "backfill job resumed"); err != nil {
		return fmt.Errorf("backfill: resume trigger: %w", err)
	}

	m.logger.Info("backfill job resumed",
		slog.String("org", org),
		slog.String("job_id", jobID.String()),
		slog.Int64("current_position", job.CurrentPosition),
	)
	m.hooks.EmitBackfillResumed(ctx, org, jobID)
	return nil
}

// Update reconfigures a paused or completed job and restarts its
// progress: the cursor resets to the new start, the deletion phase is
// cleared, retries reset, and the trigger is rescheduled immediately.
// The job keeps its identity.
func (m *Manager) Update(ctx context.Context, org string, jobID id.BackfillJobID, req Request) (*JobStatus, error) {
	cfg, t, err := m.resolve(ctx, org, jobID)
	if err != nil {
		return nil, err
	}

	if t.Status != pulse.StatusPaused && t.Status != pulse.StatusCompleted {
		return nil, pulse.ErrJobNotUpdatable
	}
	if err := validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	job := t.BackfillJob()
	if job == nil {
		return nil, fmt.Errorf("backfill: trigger %s carries no backfill payload", t.ModuleKey)
	}

	chunkPeriod := req.ChunkPeriodMinutes
	if chunkPeriod <= 0 {
		chunkPeriod = DefaultChunkPeriodMinutes
	}

	cfg.StartTime = req.StartTime
	cfg.EndTime = req.EndTime
	cfg.ChunkPeriodMinutes = chunkPeriod
	cfg.DelayBetweenChunksSecs = req.DelayBetweenChunksSecs
	cfg.DeleteBeforeBackfill = req.DeleteBeforeBackfill
	if err := m.configs.PutJobConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("backfill: update job config: %w", err)
	}

	job.StartTime = req.StartTime
	job.EndTime = req.EndTime
	job.CurrentPosition = req.StartTime
	job.ChunkPeriodMinutes = chunkPeriod
	job.DelayBetweenChunksSecs = req.DelayBetweenChunksSecs
	job.DeleteBeforeBackfill = req.DeleteBeforeBackfill
	job.DeletionStatus = pulse.DeletionStatus{State: pulse.DeletionNotRequired}
	job.DeletionJobID = ""

	t.Retries = 0
	t.Status = pulse.StatusWaiting
	t.NextRunAt = pulse.NowMicro()
	t.Data = pulse.BackfillPayload(job)
	if err := m.triggers.Update(ctx, t, "backfill job updated"); err != nil {
		return nil, fmt.Errorf("backfill: update trigger: %w", err)
	}

	m.logger.Info("backfill job updated",
		slog.String("org", org),
		slog.String("job_id", jobID.String()),
		slog.Int64("start_time", req.StartTime),
		slog.Int64("end_time", req.EndTime),
	)
	m.hooks.EmitBackfillUpdated(ctx, org, jobID)

	return newJobStatus(t, job, m.pipelineName(ctx, org, cfg.PipelineID)), nil
}

// Delete cancels any in-flight chunk query for the job, then removes the
// trigger row and the config row. Returns pulse.ErrJobNotFound when no
// matching trigger exists.
func (m *Manager) Delete(ctx context.Context, org string, jobID id.BackfillJobID) error {
	cfg, t, err := m.resolve(ctx, org, jobID)
	if err != nil {
		return err
	}

	// The chunk executor tags its queries with the job id, so that is
	// the trace id to cancel. Best effort: a failed cancel must not
	// block deletion.
	if m.queries != nil {
		if cancelErr := m.queries.CancelQuery(ctx, jobID.String()); cancelErr != nil {
			m.logger.Warn("failed to cancel in-flight query",
				slog.String("org", org),
				slog.String("job_id", jobID.String()),
				slog.String("error", cancelErr.Error()),
			)
		}
	}

	if err := m.triggers.Delete(ctx, org, pulse.ModuleBackfill, t.ModuleKey); err != nil {
		if errors.Is(err, pulse.ErrTriggerNotFound) {
			return pulse.ErrJobNotFound
		}
		return fmt.Errorf("backfill: delete trigger: %w", err)
	}
	if err := m.configs.DeleteJobConfig(ctx, org, cfg.ID); err != nil {
		return fmt.Errorf("backfill: delete job config: %w", err)
	}

	m.logger.Info("backfill job deleted",
		slog.String("org", org),
		slog.String("job_id", jobID.String()),
	)
	m.hooks.EmitBackfillDeleted(ctx, org, jobID)
	return nil
}
