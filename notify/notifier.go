package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/job"
)

// Notifier publishes job events. Implementations are best-effort: they
// never return errors to the caller, because a failed notification must
// not fail the job that produced it.
type Notifier interface {
	// NotifyStatus publishes the job's current status.
	NotifyStatus(ctx context.Context, j *job.Job)

	// NotifyFailed publishes a Failed status with the handler's error
	// message attached.
	NotifyFailed(ctx context.Context, j *job.Job, errMsg string)

	// NotifyProgress publishes handler-reported progress (0–100).
	NotifyProgress(ctx context.Context, jobID uuid.UUID, percent int)

	// NotifyReportGenerated publishes that a job produced a report.
	NotifyReportGenerated(ctx context.Context, jobID, reportID uuid.UUID)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

// NotifyStatus implements Notifier.
func (Nop) NotifyStatus(context.Context, *job.Job) {}

// NotifyFailed implements Notifier.
func (Nop) NotifyFailed(context.Context, *job.Job, string) {}

// NotifyProgress implements Notifier.
func (Nop) NotifyProgress(context.Context, uuid.UUID, int) {}

// NotifyReportGenerated implements Notifier.
func (Nop) NotifyReportGenerated(context.Context, uuid.UUID, uuid.UUID) {}

// Multi fans every notification out to a list of notifiers in order.
type Multi []Notifier

// NotifyStatus implements Notifier.
func (m Multi) NotifyStatus(ctx context.Context, j *job.Job) {
	for _, n := range m {
		n.NotifyStatus(ctx, j)
	}
}

// NotifyFailed implements Notifier.
func (m Multi) NotifyFailed(ctx context.Context, j *job.Job, errMsg string) {
	for _, n := range m {
		n.NotifyFailed(ctx, j, errMsg)
	}
}

// NotifyProgress implements Notifier.
func (m Multi) NotifyProgress(ctx context.Context, jobID uuid.UUID, percent int) {
	for _, n := range m {
		n.NotifyProgress(ctx, jobID, percent)
	}
}

// NotifyReportGenerated implements Notifier.
func (m Multi) NotifyReportGenerated(ctx context.Context, jobID, reportID uuid.UUID) {
	for _, n := range m {
		n.NotifyReportGenerated(ctx, jobID, reportID)
	}
}
