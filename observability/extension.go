// Package observability provides a metrics extension that records trigger
// and backfill lifecycle events using the OpenTelemetry metric API.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcwatch/pulse"
	"github.com/arcwatch/pulse/ext"
	"github.com/arcwatch/pulse/id"
)

// meterName is the instrumentation scope name for pulse metrics.
const meterName = "github.com/arcwatch/pulse"

// Compile-time hook checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.TriggerPulled     = (*MetricsExtension)(nil)
	_ ext.TriggerDispatched = (*MetricsExtension)(nil)
	_ ext.TriggerCompleted  = (*MetricsExtension)(nil)
	_ ext.TriggerFailed     = (*MetricsExtension)(nil)
	_ ext.BackfillCreated   = (*MetricsExtension)(nil)
	_ ext.BackfillDeleted   = (*MetricsExtension)(nil)
	_ ext.RetentionSwept    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters and a dispatch duration
// histogram. If no global MeterProvider is configured, the OTel API hands
// back noop instruments and every hook becomes a cheap no-op.
//
// Instruments:
//   - pulse.trigger.pulled (Int64Counter): leased triggers, by module
//   - pulse.trigger.dispatched (Int64Counter): dispatch starts, by module and org
//   - pulse.trigger.completed (Int64Counter): successful dispatches, by module and org
//   - pulse.trigger.failed (Int64Counter): failed dispatches, by module and org
//   - pulse.trigger.duration (Float64Histogram): dispatch time in seconds, by module and status
//   - pulse.backfill.jobs (Int64Counter): backfill job create/delete events, by op
//   - pulse.retention.deleted (Int64Counter): rows removed by retention sweeps
type MetricsExtension struct {
	pulled     metric.Int64Counter
	dispatched metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	duration   metric.Float64Histogram
	backfill   metric.Int64Counter
	retained   metric.Int64Counter
}

// NewMetricsExtension builds the extension against the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter builds the extension with the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument constructors return noop instruments on error, so the
	// extension degrades gracefully.
	pulled, _ := meter.Int64Counter(
		"pulse.trigger.pulled",
		metric.WithDescription("Number of triggers leased from the store"),
		metric.WithUnit("{trigger}"),
	)
	dispatched, _ := meter.Int64Counter(
		"pulse.trigger.dispatched",
		metric.WithDescription("Number of trigger dispatch starts"),
		metric.WithUnit("{trigger}"),
	)
	completed, _ := meter.Int64Counter(
		"pulse.trigger.completed",
		metric.WithDescription("Number of successful trigger dispatches"),
		metric.WithUnit("{trigger}"),
	)
	failed, _ := meter.Int64Counter(
		"pulse.trigger.failed",
		metric.WithDescription("Number of failed trigger dispatches"),
		metric.WithUnit("{trigger}"),
	)
	duration, _ := meter.Float64Histogram(
		"pulse.trigger.duration",
		metric.WithDescription("Duration of trigger dispatch in seconds"),
		metric.WithUnit("s"),
	)
	backfillJobs, _ := meter.Int64Counter(
		"pulse.backfill.jobs",
		metric.WithDescription("Backfill job lifecycle events"),
		metric.WithUnit("{event}"),
	)
	retained, _ := meter.Int64Counter(
		"pulse.retention.deleted",
		metric.WithDescription("Trigger rows removed by retention sweeps"),
		metric.WithUnit("{row}"),
	)

	return &MetricsExtension{
		pulled:     pulled,
		dispatched: dispatched,
		completed:  completed,
		failed:     failed,
		duration:   duration,
		backfill:   backfillJobs,
		retained:   retained,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability.metrics" }

func triggerAttrs(t *pulse.Trigger) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("module", string(t.Module)),
		attribute.String("org", t.Org),
	)
}

// OnTriggerPulled records the per-module lease counts of one pull batch.
func (m *MetricsExtension) OnTriggerPulled(ctx context.Context, byModule map[pulse.Module]int) error {
	for module, n := range byModule {
		m.pulled.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("module", string(module)),
		))
	}
	return nil
}

// OnTriggerDispatched counts a dispatch start.
func (m *MetricsExtension) OnTriggerDispatched(ctx context.Context, _ id.TraceID, t *pulse.Trigger) error {
	m.dispatched.Add(ctx, 1, triggerAttrs(t))
	return nil
}

// OnTriggerCompleted counts a successful dispatch and records its duration.
func (m *MetricsExtension) OnTriggerCompleted(ctx context.Context, _ id.TraceID, t *pulse.Trigger, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, triggerAttrs(t))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("module", string(t.Module)),
		attribute.String("status", "ok"),
	))
	return nil
}

// OnTriggerFailed counts a failed dispatch.
func (m *MetricsExtension) OnTriggerFailed(ctx context.Context, _ id.TraceID, t *pulse.Trigger, _ error) error {
	m.failed.Add(ctx, 1, triggerAttrs(t))
	return nil
}

// OnBackfillCreated counts a backfill job creation.
func (m *MetricsExtension) OnBackfillCreated(ctx context.Context, org string, _ id.BackfillJobID) error {
	m.backfill.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "create"),
		attribute.String("org", org),
	))
	return nil
}

// OnBackfillDeleted counts a backfill job deletion.
func (m *MetricsExtension) OnBackfillDeleted(ctx context.Context, org string, _ id.BackfillJobID) error {
	m.backfill.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "delete"),
		attribute.String("org", org),
	))
	return nil
}

// OnRetentionSwept records how many rows the sweep removed.
func (m *MetricsExtension) OnRetentionSwept(ctx context.Context, deleted int64) error {
	m.retained.Add(ctx, deleted)
	return nil
}
