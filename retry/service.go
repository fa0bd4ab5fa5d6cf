// Package retry keeps per-job failure bookkeeping and requeues failed
// jobs with backoff. The service owns the RetryInfo records: the first
// failure creates one with a flat one-minute delay, later failures
// increment the count and push the next attempt out exponentially with
// jitter. When the budget is exhausted the job stays Failed and its
// RetryInfo is retained for inspection.
//
// The service never decides when retries happen; the caller wrapping
// job execution records each failure, asks ShouldRetry, and invokes
// ScheduleRetry while budget remains.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/backoff"
	"github.com/quartzite/quartzite/job"
)

// DefaultMaxRetries bounds the recorded retry count. A job whose count
// has reached this value is not requeued again.
const DefaultMaxRetries = 3

// firstRetryDelay is the flat delay before the first retry. Backoff
// with jitter only applies from the second retry on.
const firstRetryDelay = time.Minute

// Scheduler re-installs a job's trigger at a new time. *sched.Service
// satisfies it.
type Scheduler interface {
	Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time) error
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.max = n }
}

// WithStrategy overrides the backoff strategy used from the second
// retry on.
func WithStrategy(strategy backoff.Strategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

// WithClock overrides the service's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements retry bookkeeping over the store and scheduler.
type Service struct {
	store     job.Store
	scheduler Scheduler
	strategy  backoff.Strategy
	max       int
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a retry service.
func NewService(store job.Store, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		scheduler: scheduler,
		strategy:  backoff.DefaultStrategy(),
		max:       DefaultMaxRetries,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordFailure creates or advances the retry bookkeeping for a failed
// job and returns the updated row. The first failure seeds the row at
// count zero with a flat one-minute delay; each later failure bumps the
// count and pushes NextRetryAt out by the strategy's delay for that
// count. The last error message is always recorded, including on the
// failure that exhausts the budget, so the retained row tells operators
// what finally killed the job.
func (s *Service) RecordFailure(ctx context.Context, jobID uuid.UUID, cause error) (*job.RetryInfo, error) {
	now := s.now().UTC()

	info, err := s.store.GetRetryInfo(ctx, jobID)
	switch {
	case errors.Is(err, quartzite.ErrRetryNotFound):
		info = &job.RetryInfo{
			Entity:      quartzite.NewEntity(),
			JobID:       jobID,
			RetryCount:  0,
			NextRetryAt: now.Add(firstRetryDelay),
		}
	case err != nil:
		return nil, fmt.Errorf("record failure for job %s: %w", jobID, err)
	default:
		info.RetryCount++
		info.NextRetryAt = now.Add(s.strategy.Delay(info.RetryCount))
		info.Touch()
	}
	info.LastError = cause.Error()

	if err := s.store.SaveRetryInfo(ctx, info); err != nil {
		return nil, fmt.Errorf("record failure for job %s: %w", jobID, err)
	}
	return info, nil
}

// ShouldRetry reports whether the recorded count still leaves budget.
func (s *Service) ShouldRetry(info *job.RetryInfo) bool {
	return info != nil && info.RetryCount < s.max
}

// ScheduleRetry flips the Failed job back to Queued and re-installs its
// trigger for info.NextRetryAt. A job that vanished from the store is
// logged and dropped, since there is nothing left to retry.
func (s *Service) ScheduleRetry(ctx context.Context, jobID uuid.UUID, info *job.RetryInfo) error {
	// Requeue before rescheduling: the envelope only runs Queued jobs,
	// so a trigger for a still-Failed row would fire into a no-op.
	if err := s.store.UpdateJobStatus(ctx, jobID, job.StatusFailed, job.StatusQueued); err != nil {
		if errors.Is(err, quartzite.ErrJobNotFound) {
			s.logger.Error("cannot retry a job that no longer exists",
				slog.String("job_id", jobID.String()),
			)
			return nil
		}
		return fmt.Errorf("schedule retry for job %s: requeue: %w", jobID, err)
	}

	if err := s.scheduler.Reschedule(ctx, jobID, info.NextRetryAt); err != nil {
		// The row is Queued with scheduled_at persisted, so startup
		// recovery can still pick it up if this process dies here.
		return fmt.Errorf("schedule retry for job %s: %w", jobID, err)
	}

	s.logger.Info("retry scheduled",
		slog.String("job_id", jobID.String()),
		slog.Int("retry_count", info.RetryCount),
		slog.Int("max_retries", s.max),
		slog.Time("next_retry_at", info.NextRetryAt),
	)
	return nil
}

// Info returns the job's retry bookkeeping, or ErrRetryNotFound.
func (s *Service) Info(ctx context.Context, jobID uuid.UUID) (*job.RetryInfo, error) {
	return s.store.GetRetryInfo(ctx, jobID)
}

// Clear drops the job's retry bookkeeping after a successful run.
// Clearing a job that never failed is a no-op.
func (s *Service) Clear(ctx context.Context, jobID uuid.UUID) error {
	if err := s.store.DeleteRetryInfo(ctx, jobID); err != nil {
		return fmt.Errorf("clear retry info for job %s: %w", jobID, err)
	}
	return nil
}
