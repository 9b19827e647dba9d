package pulse

import "errors"

var (
	// Not found errors, kept distinct so HTTP callers can map to 404.
	ErrTriggerNotFound = errors.New("pulse: trigger not found")
	ErrJobNotFound     = errors.New("pulse: backfill job not found")
	ErrNodeNotFound    = errors.New("pulse: node not found")

	// Conflict errors.
	ErrTriggerExists = errors.New("pulse: trigger already exists")

	// Validation errors (caller's fault, never retried).
	ErrPipelineNotScheduled = errors.New("pulse: pipeline is not a scheduled pipeline")
	ErrInvalidTimeRange     = errors.New("pulse: start_time must be earlier than end_time")
	ErrEndTimeInFuture      = errors.New("pulse: end_time cannot be in the future")

	// State errors: the operation does not apply in the job's current
	// status. No mutation has occurred when these are returned.
	ErrJobNotPaused    = errors.New("pulse: job is not paused")
	ErrJobCompleted    = errors.New("pulse: job is already completed")
	ErrJobNotUpdatable = errors.New("pulse: can only update paused or completed backfill jobs")
	ErrNoDispatcher    = errors.New("pulse: no dispatcher registered for module")
)
