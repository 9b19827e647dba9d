package pulse

import "time"

// Config holds scheduler configuration.
type Config struct {
	// Concurrency is the maximum number of dispatcher invocations in
	// flight across the whole worker pool.
	Concurrency int

	// PollInterval is how often the puller checks the store for due
	// triggers.
	PollInterval time.Duration

	// AlertTimeout is the lease duration granted by Pull for alert,
	// derived-stream, and other short-lived trigger modules.
	AlertTimeout time.Duration

	// ReportTimeout is the lease duration granted by Pull for report
	// and backfill triggers, which run longer per invocation.
	ReportTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight
	// dispatches to drain on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    10 * time.Second,
		AlertTimeout:    90 * time.Second,
		ReportTimeout:   300 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
