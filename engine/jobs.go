package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// CreateJob validates the job type, persists a Queued row, claims the
// given task items all-or-nothing, and installs the trigger. A nil
// scheduledAt fires as soon as a worker is free. When any task cannot
// be claimed the job is rolled back and ErrTasksClaimed returned; the
// tasks it did claim revert with the row.
func (eng *Engine) CreateJob(ctx context.Context, jobType string, scheduledAt *time.Time, taskIDs []uuid.UUID) (*job.Job, error) {
	if _, err := eng.registry.Resolve(jobType); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	var opts []job.Option
	if scheduledAt != nil {
		opts = append(opts, job.WithScheduledAt(*scheduledAt))
	}
	j := job.New(jobType, opts...)

	if err := eng.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if len(taskIDs) > 0 {
		claimed, err := eng.store.ClaimTasks(ctx, j.ID, taskIDs)
		if err != nil || claimed != len(taskIDs) {
			// Deleting the row reverts whatever this job claimed.
			eng.rollbackCreate(ctx, j.ID)
			if err != nil {
				return nil, fmt.Errorf("create job: claim tasks: %w", err)
			}
			return nil, fmt.Errorf("create job: claimed %d of %d tasks: %w",
				claimed, len(taskIDs), quartzite.ErrTasksClaimed)
		}
	}

	if err := eng.scheduler.Schedule(ctx, j); err != nil {
		eng.rollbackCreate(ctx, j.ID)
		return nil, fmt.Errorf("create job: %w", err)
	}

	eng.hooks.EmitJobCreated(ctx, j)
	eng.logger.Info("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Any("scheduled_at", j.ScheduledAt),
		slog.Int("tasks", len(taskIDs)),
	)
	return j, nil
}

func (eng *Engine) rollbackCreate(ctx context.Context, jobID uuid.UUID) {
	if err := eng.store.DeleteJob(ctx, jobID); err != nil {
		eng.logger.Error("job rollback failed, row left behind",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// RescheduleJob moves a Queued job's fire time, persisting the new
// time before replacing the trigger. A zero time clears the schedule
// and fires immediately. Jobs in any other status return
// ErrJobNotRunnable.
func (eng *Engine) RescheduleJob(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", jobID, err)
	}
	if j.Status != job.StatusQueued {
		return fmt.Errorf("reschedule job %s: status %s: %w", jobID, j.Status, quartzite.ErrJobNotRunnable)
	}
	return eng.scheduler.Reschedule(ctx, jobID, at)
}

// DeleteJob removes a job that is not currently running: its trigger,
// its row, and its retry bookkeeping. Tasks the job claimed revert to
// unclaimed; reports survive.
func (eng *Engine) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	j, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if j.Status == job.StatusRunning {
		return fmt.Errorf("delete job %s: %w", jobID, quartzite.ErrJobRunning)
	}

	eng.scheduler.Unschedule(jobID)
	if err := eng.store.DeleteJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if err := eng.retries.Clear(ctx, jobID); err != nil {
		eng.logger.Warn("retry bookkeeping not cleared with job",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}

	eng.logger.Info("job deleted", slog.String("job_id", jobID.String()))
	return nil
}

// GetJob returns the job row.
func (eng *Engine) GetJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// ListJobsByStatus returns jobs in the given status.
func (eng *Engine) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	return eng.store.ListJobsByStatus(ctx, status, opts)
}

// CreateTask persists a new unclaimed task item for jobs to claim.
func (eng *Engine) CreateTask(ctx context.Context, title, content string) (*job.TaskItem, error) {
	t := job.NewTask(title, content)
	if err := eng.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// ListUnclaimedTasks returns tasks no job holds, oldest first.
func (eng *Engine) ListUnclaimedTasks(ctx context.Context, limit int) ([]*job.TaskItem, error) {
	return eng.store.ListUnclaimedTasks(ctx, limit)
}

// ListTasksForJob returns the tasks claimed by the job.
func (eng *Engine) ListTasksForJob(ctx context.Context, jobID uuid.UUID) ([]*job.TaskItem, error) {
	return eng.store.ListTasksForJob(ctx, jobID)
}

// SaveReport persists a handler-produced report and announces it to
// subscribers. Handlers typically call this through a closure over the
// engine.
func (eng *Engine) SaveReport(ctx context.Context, r *job.Report) error {
	if err := eng.store.CreateReport(ctx, r); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	eng.notifier.NotifyReportGenerated(ctx, r.JobID, r.ID)
	eng.logger.Debug("report saved",
		slog.String("report_id", r.ID.String()),
		slog.String("job_id", r.JobID.String()),
		slog.String("file_name", r.FileName),
	)
	return nil
}

// GetReport returns a report by id.
func (eng *Engine) GetReport(ctx context.Context, reportID uuid.UUID) (*job.Report, error) {
	return eng.store.GetReport(ctx, reportID)
}

// MarkReportDownloaded flips a report to downloaded status.
func (eng *Engine) MarkReportDownloaded(ctx context.Context, reportID uuid.UUID) error {
	return eng.store.MarkReportDownloaded(ctx, reportID)
}
