package backfill

import (
	"context"

	"github.com/arcwatch/pulse/id"
)

// JobConfig is the static, durable "recipe" of a backfill job — one row
// per job id. The trigger's embedded BackfillJob carries the dynamic
// progress cursor; both are rewritten together on Update.
type JobConfig struct {
	ID                     id.BackfillJobID `json:"id"`
	Org                    string           `json:"org"`
	PipelineID             string           `json:"pipeline_id"`
	StartTime              int64            `json:"start_time"`
	EndTime                int64            `json:"end_time"`
	ChunkPeriodMinutes     int64            `json:"chunk_period_minutes"`
	DelayBetweenChunksSecs int64            `json:"delay_between_chunks_secs"`
	DeleteBeforeBackfill   bool             `json:"delete_before_backfill"`
	CreatedAt              int64            `json:"created_at"`
}

// ConfigStore persists backfill job configuration rows keyed by (org, id).
type ConfigStore interface {
	// PutJobConfig inserts or replaces a config row.
	PutJobConfig(ctx context.Context, cfg *JobConfig) error

	// GetJobConfig retrieves a config row. Returns pulse.ErrJobNotFound
	// if absent.
	GetJobConfig(ctx context.Context, org string, jobID id.BackfillJobID) (*JobConfig, error)

	// DeleteJobConfig removes a config row. Returns pulse.ErrJobNotFound
	// if absent.
	DeleteJobConfig(ctx context.Context, org string, jobID id.BackfillJobID) error
}

// Pipeline is the subset of a pipeline definition the manager needs.
type Pipeline struct {
	ID   string
	Name string
	// Scheduled reports whether the pipeline runs on a schedule.
	// Backfill only applies to scheduled pipelines.
	Scheduled bool
}

// PipelineResolver looks up pipeline definitions.
type PipelineResolver interface {
	GetPipeline(ctx context.Context, org, pipelineID string) (*Pipeline, error)
}

// QueryCanceler cancels in-flight queries by trace id. Used on job
// deletion to stop a chunk query that may still be executing.
type QueryCanceler interface {
	CancelQuery(ctx context.Context, traceID string) error
}
