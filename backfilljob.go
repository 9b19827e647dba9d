package pulse

import "math"

// DeletionState is the phase of the optional pre-backfill deletion step.
type DeletionState string

const (
	// DeletionPending means deletion is required but has not started.
	DeletionPending DeletionState = "pending"
	// DeletionInProgress means the deletion task is running.
	DeletionInProgress DeletionState = "in_progress"
	// DeletionCompleted means the target range was cleared.
	DeletionCompleted DeletionState = "completed"
	// DeletionNotRequired means the job skips the deletion phase.
	DeletionNotRequired DeletionState = "not_required"
	// DeletionFailed means the deletion task failed; Reason holds why.
	DeletionFailed DeletionState = "failed"
)

// DeletionStatus tracks the pre-backfill deletion phase.
type DeletionStatus struct {
	State  DeletionState `json:"state"`
	Reason string        `json:"reason,omitempty"`
}

// Terminal reports whether the deletion phase is finished and chunked
// backfill progress may proceed past the deletion-phase ceiling.
func (d DeletionStatus) Terminal() bool {
	return d.State == DeletionCompleted || d.State == DeletionNotRequired
}

// deletionPhasePercent is the share of overall progress reserved for the
// deletion phase when DeleteBeforeBackfill is set.
const deletionPhasePercent = 20.0

// BackfillJob is the dynamic progress record of a chunked backfill,
// embedded in the trigger payload. The invariant
// StartTime <= CurrentPosition <= EndTime holds after every mutation;
// CurrentPosition only advances while the job runs.
type BackfillJob struct {
	ID               string `json:"id"`
	SourcePipelineID string `json:"source_pipeline_id"`

	// Target range and cursor, epoch micros.
	StartTime       int64 `json:"start_time"`
	EndTime         int64 `json:"end_time"`
	CurrentPosition int64 `json:"current_position"`

	ChunkPeriodMinutes     int64 `json:"chunk_period_minutes"`
	DelayBetweenChunksSecs int64 `json:"delay_between_chunks_secs"`
	MaxExecutionTimeSecs   int64 `json:"max_execution_time_secs,omitempty"`

	DeleteBeforeBackfill bool           `json:"delete_before_backfill"`
	DeletionStatus       DeletionStatus `json:"deletion_status"`
	// DeletionJobID is the handle of the external deletion task, if one
	// was launched.
	DeletionJobID string `json:"deletion_job_id,omitempty"`
}

// Done reports whether the cursor has reached the end of the range.
func (b *BackfillJob) Done() bool {
	return b.CurrentPosition >= b.EndTime
}

// completedRatio is the fraction of the target range behind the cursor,
// clamped to [0, 1].
func (b *BackfillJob) completedRatio() float64 {
	total := b.EndTime - b.StartTime
	if total <= 0 {
		return 1
	}
	r := float64(b.CurrentPosition-b.StartTime) / float64(total)
	return math.Min(math.Max(r, 0), 1)
}

// ProgressPercent maps the job's state onto [0, 100]. When a deletion
// phase is required it occupies [0, 20): pending and failed report 0,
// in-progress reports 10, and chunk progress is remapped onto [20, 100]
// once the phase is terminal. Without a deletion phase chunk progress
// maps directly onto [0, 100].
func (b *BackfillJob) ProgressPercent() float64 {
	if !b.DeleteBeforeBackfill {
		return b.completedRatio() * 100
	}

	switch b.DeletionStatus.State {
	case DeletionPending, DeletionFailed:
		return 0
	case DeletionInProgress:
		return deletionPhasePercent / 2
	}

	return deletionPhasePercent + (100-deletionPhasePercent)*b.completedRatio()
}

// ChunksTotal is the number of chunks needed to cover the target range.
func (b *BackfillJob) ChunksTotal() int64 {
	if b.ChunkPeriodMinutes <= 0 {
		return 0
	}
	totalMinutes := float64(b.EndTime-b.StartTime) / float64(60_000_000)
	return int64(math.Ceil(totalMinutes / float64(b.ChunkPeriodMinutes)))
}

// ChunksCompleted is the number of whole chunks behind the cursor.
func (b *BackfillJob) ChunksCompleted() int64 {
	if b.ChunkPeriodMinutes <= 0 {
		return 0
	}
	doneMinutes := float64(b.CurrentPosition-b.StartTime) / float64(60_000_000)
	if doneMinutes <= 0 {
		return 0
	}
	return int64(math.Floor(doneMinutes / float64(b.ChunkPeriodMinutes)))
}
