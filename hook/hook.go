// Package hook defines the extension system for quartzite. Extensions
// are notified of lifecycle events (job created, started, completed,
// failed, retry scheduled, cleaned) and can react to them — auditing,
// metrics, external signaling.
//
// Each lifecycle event is a separate interface so extensions opt in
// only to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a job row is persisted and its trigger
// installed.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Job) error
}

// JobStarted is called when the envelope begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after a job's failure is durable. When a retry
// will follow, RetryScheduled fires afterwards.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// RetryScheduled is called when a failed job is re-queued for retry.
type RetryScheduled interface {
	OnRetryScheduled(ctx context.Context, j *job.Job, attempt int, nextRetryAt time.Time) error
}

// JobCleaned is called after cleanup processed a job. removedTrigger
// and removedRow report what the cleanup actually did.
type JobCleaned interface {
	OnJobCleaned(ctx context.Context, jobID uuid.UUID, removedTrigger, removedRow bool) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
