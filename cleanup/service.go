// Package cleanup removes terminal jobs from the live scheduler and
// the store according to policy. Only Completed jobs are eligible for
// full cleanup; the scheduler-only variant serves the failure path,
// where the trigger goes but the row always stays for troubleshooting.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// Scheduler cancels pending triggers. *sched.Service satisfies it.
type Scheduler interface {
	Unschedule(jobID uuid.UUID) bool
}

// Result aggregates one bulk cleanup pass.
type Result struct {
	// Processed is how many Completed jobs the pass touched.
	Processed int `json:"processed"`

	// SchedulerRemoved counts jobs whose pending trigger was found and
	// cancelled.
	SchedulerRemoved int `json:"scheduler_removed"`

	// StoreRemoved counts job rows actually deleted.
	StoreRemoved int `json:"store_removed"`

	// Failed counts jobs whose removal errored. Failures are isolated
	// per job and never abort the pass.
	Failed int `json:"failed"`
}

// FinalizeResult reports what the post-run Finalize step removed.
type FinalizeResult struct {
	// Cleaned is true when at least one removal happened.
	Cleaned bool

	// SchedulerRemoved is true when a pending trigger was cancelled.
	SchedulerRemoved bool

	// StoreRemoved is true when the job row was deleted.
	StoreRemoved bool
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy overrides the cleanup policy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the service's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service applies the cleanup policy to terminal jobs.
type Service struct {
	store     job.Store
	scheduler Scheduler
	policy    Policy
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a cleanup service with the default policy.
func NewService(store job.Store, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		scheduler: scheduler,
		policy:    DefaultPolicy(),
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active cleanup policy.
func (s *Service) Policy() Policy { return s.policy }

// CleanupOne applies the policy's removals to a single Completed job.
// A missing job returns ErrJobNotFound; a job in any other status
// returns ErrJobNotCompleted. Both are logged as warnings first.
func (s *Service) CleanupOne(ctx context.Context, jobID uuid.UUID) error {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, quartzite.ErrJobNotFound) {
			s.logger.Warn("cleanup skipped, job not found",
				slog.String("job_id", jobID.String()),
			)
		}
		return fmt.Errorf("cleanup job %s: %w", jobID, err)
	}
	if j.Status != job.StatusCompleted {
		s.logger.Warn("cleanup skipped, job not completed",
			slog.String("job_id", jobID.String()),
			slog.String("status", string(j.Status)),
		)
		return fmt.Errorf("cleanup job %s: %w", jobID, quartzite.ErrJobNotCompleted)
	}

	if _, err := s.remove(ctx, jobID); err != nil {
		return fmt.Errorf("cleanup job %s: %w", jobID, err)
	}
	return nil
}

// CleanupAllCompleted sweeps every Completed job older than the
// retention window. Per-job failures are counted and logged, never
// propagated; the returned error covers only the listing itself.
func (s *Service) CleanupAllCompleted(ctx context.Context) (Result, error) {
	cutoff := s.now().UTC().Add(-s.policy.Retention)
	jobs, err := s.store.ListJobsByStatus(ctx, job.StatusCompleted, job.ListOpts{CreatedBefore: cutoff})
	if err != nil {
		return Result{}, fmt.Errorf("list completed jobs: %w", err)
	}

	var res Result
	for _, j := range jobs {
		res.Processed++
		rem, err := s.remove(ctx, j.ID)
		if err != nil {
			res.Failed++
			s.logger.Error("cleanup failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if rem.schedulerRemoved {
			res.SchedulerRemoved++
		}
		if rem.storeRemoved {
			res.StoreRemoved++
		}
	}

	s.logger.Info("cleanup pass finished",
		slog.Int("processed", res.Processed),
		slog.Int("scheduler_removed", res.SchedulerRemoved),
		slog.Int("store_removed", res.StoreRemoved),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// CleanupSchedulerOnly drops any pending trigger while always keeping
// the store record, independent of the policy flags. It reports
// whether a trigger existed.
func (s *Service) CleanupSchedulerOnly(jobID uuid.UUID) bool {
	removed := s.scheduler.Unschedule(jobID)
	if removed {
		s.logger.Debug("trigger removed, store record kept",
			slog.String("job_id", jobID.String()),
		)
	}
	return removed
}

// Finalize is the execution envelope's guaranteed post-run step. When
// auto-clean is on and retention is immediate, it removes a job that
// finished Completed; anything else is left alone. Errors are logged,
// never propagated: the run already ended and its outcome must stand.
// The result reports what was actually removed so callers can notify.
func (s *Service) Finalize(ctx context.Context, jobID uuid.UUID) FinalizeResult {
	if !s.policy.AutoCleanCompleted {
		return FinalizeResult{}
	}
	if s.policy.Retention > 0 {
		// Retained rows are the sweeper's business.
		return FinalizeResult{}
	}

	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if !errors.Is(err, quartzite.ErrJobNotFound) {
			s.logger.Error("finalize lookup failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
		return FinalizeResult{}
	}
	if j.Status != job.StatusCompleted {
		return FinalizeResult{}
	}

	rem, err := s.remove(ctx, jobID)
	if err != nil {
		s.logger.Error("auto-cleanup failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
	// Partial removals still count; the error only covers what failed.
	return FinalizeResult{
		Cleaned:          rem.schedulerRemoved || rem.storeRemoved,
		SchedulerRemoved: rem.schedulerRemoved,
		StoreRemoved:     rem.storeRemoved,
	}
}

// removal reports what a remove call actually touched.
type removal struct {
	schedulerRemoved bool
	storeRemoved     bool
}

// remove applies the policy's removals. The two removals are
// independent and run concurrently when both apply.
func (s *Service) remove(ctx context.Context, jobID uuid.UUID) (removal, error) {
	var res removal
	g, gctx := errgroup.WithContext(ctx)

	if s.policy.RemoveFromScheduler {
		g.Go(func() error {
			res.schedulerRemoved = s.scheduler.Unschedule(jobID)
			return nil
		})
	}
	if s.policy.RemoveFromDatabase {
		g.Go(func() error {
			if err := s.store.DeleteJob(gctx, jobID); err != nil {
				if errors.Is(err, quartzite.ErrJobNotFound) {
					// Already gone; nothing to count.
					return nil
				}
				return fmt.Errorf("delete job row: %w", err)
			}
			res.storeRemoved = true
			return nil
		})
	}

	err := g.Wait()
	return res, err
}
