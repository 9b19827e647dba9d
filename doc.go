// Package pulse is the trigger-based job scheduler core of a multi-tenant
// observability backend. It decides which pending units of work — alert
// evaluations, report generation, derived-stream runs, and long-running
// backfill jobs — are due, dispatches them to a bounded worker pool, and
// tracks their lifecycle through a persisted trigger record.
//
// The root package defines the shared data model: the Trigger entity, the
// module-discriminated Payload, the BackfillJob progress record, the Store
// persistence contract, and the sentinel errors every subsystem maps onto.
// Subsystems live in subpackages:
//
//   - scheduler:  job puller, worker pool, and orchestrator
//   - backfill:   backfill job state machine (create/pause/resume/update/delete)
//   - cluster:    node model, min-UUID leader election, retention sweep
//   - dispatcher: per-module execution routing
//   - ext:        lifecycle hooks
//   - store/*:    memory, postgres, and redis backends
//
// # Quick start
//
//	s := scheduler.New(store, mux, logger,
//	    scheduler.WithConcurrency(20),
//	)
//	err := s.Run(ctx)
//
// All domain timestamps are epoch microseconds (int64), matching the rest
// of the platform's wire and storage formats.
package pulse
