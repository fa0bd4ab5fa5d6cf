package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListOpts controls filtering and ordering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// CreatedBefore filters to jobs created strictly before the given
	// time. Zero means no age filter.
	CreatedBefore time.Time
	// ByScheduledAt orders results by scheduled time ascending with
	// unscheduled jobs last, then by creation time ascending. The
	// default order is creation time ascending.
	ByScheduledAt bool
}

// Store defines the persistence contract for the orchestration
// subsystem. A single backend implements every entity group.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// UpdateJobStatus performs the guarded transition from → to. It
	// fails with quartzite.ErrInvalidTransition when the change is not
	// in the legal table, and with quartzite.ErrJobNotFound when the row
	// is missing or no longer in the from status.
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, from, to Status) error

	// SetJobScheduledAt updates the job's scheduled time. Nil clears it.
	SetJobScheduledAt(ctx context.Context, jobID uuid.UUID, at *time.Time) error

	// DeleteJob removes a job row. Task items claimed by the job revert
	// to unclaimed; reports are untouched.
	DeleteJob(ctx context.Context, jobID uuid.UUID) error

	// ListJobsByStatus returns jobs in the given status.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CreateTask persists a new task item.
	CreateTask(ctx context.Context, t *TaskItem) error

	// UpdateTask persists changes to an existing task item.
	UpdateTask(ctx context.Context, t *TaskItem) error

	// ClaimTasks assigns the given unclaimed tasks to the job and
	// returns how many rows it claimed. Tasks already held by another
	// job are skipped, never stolen; callers needing all-or-nothing
	// compare the count and release.
	ClaimTasks(ctx context.Context, jobID uuid.UUID, taskIDs []uuid.UUID) (int, error)

	// ReleaseTasks reverts every task claimed by the job to unclaimed
	// and returns how many rows it released.
	ReleaseTasks(ctx context.Context, jobID uuid.UUID) (int, error)

	// ListTasksForJob returns the tasks claimed by the job.
	ListTasksForJob(ctx context.Context, jobID uuid.UUID) ([]*TaskItem, error)

	// ListUnclaimedTasks returns tasks not held by any job, oldest
	// first. Zero limit means no limit.
	ListUnclaimedTasks(ctx context.Context, limit int) ([]*TaskItem, error)

	// CreateReport persists a new report.
	CreateReport(ctx context.Context, r *Report) error

	// GetReport retrieves a report by ID.
	GetReport(ctx context.Context, reportID uuid.UUID) (*Report, error)

	// MarkReportDownloaded flips a report to downloaded status.
	MarkReportDownloaded(ctx context.Context, reportID uuid.UUID) error

	// GetRetryInfo retrieves the retry bookkeeping for a job.
	GetRetryInfo(ctx context.Context, jobID uuid.UUID) (*RetryInfo, error)

	// SaveRetryInfo inserts or updates the retry bookkeeping for a job.
	SaveRetryInfo(ctx context.Context, info *RetryInfo) error

	// DeleteRetryInfo removes the retry bookkeeping for a job. Removing
	// an absent row is not an error.
	DeleteRetryInfo(ctx context.Context, jobID uuid.UUID) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
