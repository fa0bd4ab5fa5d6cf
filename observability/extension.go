package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quartzite/quartzite/hook"
	"github.com/quartzite/quartzite/job"
)

// meterName is the instrumentation scope name for quartzite metrics.
const meterName = "github.com/quartzite/quartzite"

// Compile-time interface checks.
var (
	_ hook.Extension      = (*MetricsExtension)(nil)
	_ hook.JobCreated     = (*MetricsExtension)(nil)
	_ hook.JobCompleted   = (*MetricsExtension)(nil)
	_ hook.JobFailed      = (*MetricsExtension)(nil)
	_ hook.RetryScheduled = (*MetricsExtension)(nil)
	_ hook.JobCleaned     = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events for every job the engine
// touches. Register it as an extension to track creation rates,
// completion and failure counts, scheduled retries, and cleanups.
//
// Instruments (all Int64Counter, attribute job_type where a job is at
// hand):
//   - quartzite.job.created
//   - quartzite.job.completed
//   - quartzite.job.failed
//   - quartzite.job.retries
//   - quartzite.job.cleaned
type MetricsExtension struct {
	created   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retries   metric.Int64Counter
	cleaned   metric.Int64Counter
}

// New creates a MetricsExtension on the global OTel MeterProvider. With
// no provider configured the instruments are noops.
func New() *MetricsExtension {
	return NewWithMeter(otel.Meter(meterName))
}

// NewWithMeter creates a MetricsExtension with the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument creation errors leave noop instruments behind, so they
	// are safe to ignore here.
	created, _ := meter.Int64Counter(
		"quartzite.job.created",
		metric.WithDescription("Jobs created and scheduled"),
		metric.WithUnit("{job}"),
	)
	completed, _ := meter.Int64Counter(
		"quartzite.job.completed",
		metric.WithDescription("Jobs that reached completed"),
		metric.WithUnit("{job}"),
	)
	failed, _ := meter.Int64Counter(
		"quartzite.job.failed",
		metric.WithDescription("Jobs that reached failed"),
		metric.WithUnit("{job}"),
	)
	retries, _ := meter.Int64Counter(
		"quartzite.job.retries",
		metric.WithDescription("Retries scheduled after failures"),
		metric.WithUnit("{retry}"),
	)
	cleaned, _ := meter.Int64Counter(
		"quartzite.job.cleaned",
		metric.WithDescription("Jobs processed by cleanup"),
		metric.WithUnit("{job}"),
	)
	return &MetricsExtension{
		created:   created,
		completed: completed,
		failed:    failed,
		retries:   retries,
		cleaned:   cleaned,
	}
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobCreated implements hook.JobCreated.
func (m *MetricsExtension) OnJobCreated(ctx context.Context, j *job.Job) error {
	m.created.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnRetryScheduled implements hook.RetryScheduled.
func (m *MetricsExtension) OnRetryScheduled(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retries.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCleaned implements hook.JobCleaned. Cleanup hands over an id
// only, so the counter carries what was removed instead of a job type.
func (m *MetricsExtension) OnJobCleaned(ctx context.Context, _ uuid.UUID, removedTrigger, removedRow bool) error {
	m.cleaned.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("removed_trigger", removedTrigger),
		attribute.Bool("removed_row", removedRow),
	))
	return nil
}

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", j.Type))
}
