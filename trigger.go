package pulse

import "time"

// Module is the kind of work a trigger represents. It discriminates both
// the dispatch path and the shape of the trigger's payload.
type Module string

const (
	// ModuleAlert schedules alert condition evaluations.
	ModuleAlert Module = "alert"
	// ModuleReport schedules report generation.
	ModuleReport Module = "report"
	// ModuleDerivedStream schedules derived-stream materialization runs.
	ModuleDerivedStream Module = "derived_stream"
	// ModuleBackfill schedules chunked historical backfill jobs.
	ModuleBackfill Module = "backfill"
	// ModuleQueryRecommendations schedules query recommendation analysis.
	ModuleQueryRecommendations Module = "query_recommendations"
)

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	switch m {
	case ModuleAlert, ModuleReport, ModuleDerivedStream, ModuleBackfill, ModuleQueryRecommendations:
		return true
	}
	return false
}

// Status is the lifecycle state of a trigger. Paused is an explicit state:
// a paused trigger keeps its progress cursor and is never eligible for pull
// until resumed, while a completed trigger is genuinely finished.
type Status string

const (
	// StatusWaiting means the trigger is eligible to be pulled once due.
	StatusWaiting Status = "waiting"
	// StatusRunning means the trigger is leased by a worker. The lease
	// expires at LeaseDeadline, after which Pull may re-surface it.
	StatusRunning Status = "running"
	// StatusPaused means the trigger was paused by an operator. Progress
	// is retained and the trigger can be resumed.
	StatusPaused Status = "paused"
	// StatusCompleted means the trigger finished and will not run again.
	StatusCompleted Status = "completed"
	// StatusFailed means the trigger failed terminally.
	StatusFailed Status = "failed"
)

// Trigger is the schedulable unit record. Exactly one row exists per
// (Org, Module, ModuleKey); the store leases rows via Pull so a trigger is
// executed by at most one worker per lease window.
type Trigger struct {
	Org       string `json:"org"`
	Module    Module `json:"module"`
	ModuleKey string `json:"module_key"`

	// NextRunAt is the earliest eligible execution time, epoch micros.
	NextRunAt int64 `json:"next_run_at"`

	// IsRealtime marks triggers evaluated on the ingest path; they are
	// excluded from polling pull unless silenced.
	IsRealtime bool `json:"is_realtime"`
	// IsSilenced suppresses realtime evaluation; a silenced realtime
	// trigger falls back to the polling path so it can un-silence itself.
	IsSilenced bool `json:"is_silenced"`

	Status  Status `json:"status"`
	Retries int    `json:"retries"`

	// Data is the module-discriminated payload. Nil for modules that
	// carry no dynamic state.
	Data *Payload `json:"data,omitempty"`

	// Bookkeeping, maintained by the store (epoch micros).
	CreatedAt     int64 `json:"created_at"`
	StartTime     int64 `json:"start_time,omitempty"`
	EndTime       int64 `json:"end_time,omitempty"`
	LeaseDeadline int64 `json:"lease_deadline,omitempty"`
}

// BackfillJob returns the embedded backfill record, or nil if the trigger
// does not carry one.
func (t *Trigger) BackfillJob() *BackfillJob {
	if t.Data == nil {
		return nil
	}
	return t.Data.Backfill
}

// NowMicro returns the current time as epoch microseconds (UTC).
func NowMicro() int64 {
	return time.Now().UTC().UnixMicro()
}

// MicroTime converts epoch microseconds to a UTC time.Time.
func MicroTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
