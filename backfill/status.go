package backfill

import (
	"github.com/arcwatch/pulse"
)

// JobStatus is the read model returned to callers (and exposed by the
// HTTP layer out of scope here). Progress percent and chunk counters are
// derived from the embedded BackfillJob.
type JobStatus struct {
	JobID        string `json:"job_id"`
	PipelineID   string `json:"pipeline_id"`
	PipelineName string `json:"pipeline_name,omitempty"`

	StartTime       int64 `json:"start_time"`
	EndTime         int64 `json:"end_time"`
	CurrentPosition int64 `json:"current_position"`

	ProgressPercent float64              `json:"progress_percent"`
	Status          string               `json:"status"`
	DeletionStatus  pulse.DeletionStatus `json:"deletion_status"`

	ChunksTotal     int64 `json:"chunks_total"`
	ChunksCompleted int64 `json:"chunks_completed"`

	CreatedAt int64 `json:"created_at"`
}

// newJobStatus builds the read model from a trigger and its embedded job.
func newJobStatus(t *pulse.Trigger, job *pulse.BackfillJob, pipelineName string) *JobStatus {
	return &JobStatus{
		JobID:           job.ID,
		PipelineID:      job.SourcePipelineID,
		PipelineName:    pipelineName,
		StartTime:       job.StartTime,
		EndTime:         job.EndTime,
		CurrentPosition: job.CurrentPosition,
		ProgressPercent: job.ProgressPercent(),
		Status:          string(t.Status),
		DeletionStatus:  job.DeletionStatus,
		ChunksTotal:     job.ChunksTotal(),
		ChunksCompleted: job.ChunksCompleted(),
		CreatedAt:       t.CreatedAt,
	}
}
