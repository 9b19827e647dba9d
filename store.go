package pulse

import (
	"context"
	"time"
)

// Store is the persistence contract for triggers. One row exists per
// (Org, Module, ModuleKey); Pull is the only leasing operation and
// StatusWaiting is the only state it may lease from, besides re-leasing
// running rows whose lease expired.
type Store interface {
	// Push persists a new trigger. Returns ErrTriggerExists when a row
	// with the same (org, module, module_key) already exists.
	Push(ctx context.Context, t *Trigger) error

	// Pull atomically leases up to limit due triggers: status waiting,
	// next_run_at in the past, and not an un-silenced realtime trigger
	// (those are evaluated on the ingest path). Leased rows move to
	// running with a lease deadline of alertTimeout — or reportTimeout
	// for report and backfill modules — after which they become
	// re-leasable.
	Pull(ctx context.Context, limit int, alertTimeout, reportTimeout time.Duration) ([]*Trigger, error)

	// Get retrieves a trigger. Returns ErrTriggerNotFound if absent.
	Get(ctx context.Context, org string, module Module, key string) (*Trigger, error)

	// Update persists the full trigger row. The reason is recorded in
	// logs only, to attribute who rewrote the row.
	Update(ctx context.Context, t *Trigger, reason string) error

	// UpdateStatus updates status and retries, and the payload when data
	// is non-nil, leaving every other column untouched.
	UpdateStatus(ctx context.Context, org string, module Module, key string, status Status, retries int, data *Payload) error

	// Delete removes a trigger. Returns ErrTriggerNotFound if absent.
	Delete(ctx context.Context, org string, module Module, key string) error

	// ListByOrg returns the org's triggers, filtered by module when
	// module is non-empty.
	ListByOrg(ctx context.Context, org string, module Module) ([]*Trigger, error)

	// PurgeCompletedBefore deletes completed trigger rows created before
	// cutoff (epoch micros) and returns how many were removed. Used by
	// the cluster retention sweep.
	PurgeCompletedBefore(ctx context.Context, cutoff int64) (int64, error)
}
