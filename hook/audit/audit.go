// Package audit provides a hook extension that turns job lifecycle
// events into structured audit events. Callers inject a Recorder that
// bridges to their audit backend; the default recorder writes slog
// lines, which is enough for single-binary deployments.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/hook"
	"github.com/quartzite/quartzite/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension      = (*Extension)(nil)
	_ hook.JobCreated     = (*Extension)(nil)
	_ hook.JobStarted     = (*Extension)(nil)
	_ hook.JobCompleted   = (*Extension)(nil)
	_ hook.JobFailed      = (*Extension)(nil)
	_ hook.RetryScheduled = (*Extension)(nil)
	_ hook.JobCleaned     = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is one audit trail entry.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Audit event actions. Each constant corresponds to one hook lifecycle
// event and becomes the Action field of the audit event.
const (
	ActionJobCreated     = "job.created"
	ActionJobStarted     = "job.started"
	ActionJobCompleted   = "job.completed"
	ActionJobFailed      = "job.failed"
	ActionRetryScheduled = "job.retry_scheduled"
	ActionJobCleaned     = "job.cleaned"
)

// ResourceJob is the Resource field used for every event this
// extension emits.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionRetryScheduled,
		ActionJobCleaned,
	}
}

// Extension bridges lifecycle events to an audit trail backend. Each
// hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSlog creates an Extension whose events become slog lines on the
// given logger.
func NewSlog(logger *slog.Logger) *Extension {
	rec := RecorderFunc(func(_ context.Context, evt *Event) error {
		logger.Info("audit",
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
	return New(rec, WithLogger(logger))
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit" }

// OnJobCreated implements hook.JobCreated.
func (e *Extension) OnJobCreated(ctx context.Context, j *job.Job) error {
	kv := []any{"job_type", j.Type}
	if j.ScheduledAt != nil {
		kv = append(kv, "scheduled_at", j.ScheduledAt.Format(time.RFC3339))
	}
	return e.record(ctx, ActionJobCreated, SeverityInfo, OutcomeSuccess, j.ID.String(), nil, kv...)
}

// OnJobStarted implements hook.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess, j.ID.String(), nil,
		"job_type", j.Type,
	)
}

// OnJobCompleted implements hook.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess, j.ID.String(), nil,
		"job_type", j.Type,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements hook.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure, j.ID.String(), jobErr,
		"job_type", j.Type,
	)
}

// OnRetryScheduled implements hook.RetryScheduled.
func (e *Extension) OnRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextRetryAt time.Time) error {
	return e.record(ctx, ActionRetryScheduled, SeverityWarning, OutcomeFailure, j.ID.String(), nil,
		"job_type", j.Type,
		"attempt", attempt,
		"next_retry_at", nextRetryAt.Format(time.RFC3339),
	)
}

// OnJobCleaned implements hook.JobCleaned.
func (e *Extension) OnJobCleaned(ctx context.Context, jobID uuid.UUID, removedTrigger, removedRow bool) error {
	return e.record(ctx, ActionJobCleaned, SeverityInfo, OutcomeSuccess, jobID.String(), nil,
		"removed_trigger", removedTrigger,
		"removed_row", removedRow,
	)
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resourceID string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   ResourceJob,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
