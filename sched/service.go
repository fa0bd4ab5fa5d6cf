package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/job"
)

// Service is the application-facing scheduling API. It validates job
// types against the registry, persists schedule changes, and manages
// triggers on the Engine.
type Service struct {
	engine   *Engine
	registry *job.Registry
	store    job.Store
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the service's clock.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a scheduling Service on top of the engine.
func NewService(
	engine *Engine,
	registry *job.Registry,
	store job.Store,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		engine:   engine,
		registry: registry,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule installs a trigger for the job. The job type must resolve
// in the registry; unknown types are rejected before anything is
// touched. A nil ScheduledAt fires immediately. An elapsed ScheduledAt
// also fires immediately, with a warning naming how late it is, so a
// past-due schedule never slips by silently.
func (s *Service) Schedule(ctx context.Context, j *job.Job) error {
	if _, err := s.registry.Resolve(j.Type); err != nil {
		s.logger.Error("refusing to schedule job with unresolvable type",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return err
	}

	var at time.Time
	if j.ScheduledAt != nil {
		at = *j.ScheduledAt
		if now := s.now(); !at.After(now) {
			s.logger.Warn("scheduled time already elapsed, firing immediately",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.Duration("late_by", now.Sub(at)),
			)
			at = time.Time{}
		}
	}

	s.engine.Install(j.ID, at)

	s.logger.Debug("trigger installed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Any("fire_at", j.ScheduledAt),
	)
	return nil
}

// Reschedule persists the new fire time, then replaces the trigger by
// scheduling the job afresh. A zero time clears scheduled_at and fires
// immediately.
func (s *Service) Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	scheduledAt := &at
	if at.IsZero() {
		scheduledAt = nil
	}

	if err := s.store.SetJobScheduledAt(ctx, jobID, scheduledAt); err != nil {
		s.logger.Error("reschedule: persisting scheduled_at failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("reschedule job %s: %w", jobID, err)
	}

	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Error("reschedule: loading job failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("reschedule job %s: %w", jobID, err)
	}

	return s.Schedule(ctx, j)
}

// Unschedule cancels any pending trigger for the job id, reporting
// whether one existed. Absence is a normal outcome, not an error.
func (s *Service) Unschedule(jobID uuid.UUID) bool {
	removed := s.engine.Cancel(jobID)
	if removed {
		s.logger.Debug("trigger cancelled", slog.String("job_id", jobID.String()))
	}
	return removed
}

// Scheduled reports whether the job id has a pending trigger.
func (s *Service) Scheduled(jobID uuid.UUID) bool {
	return s.engine.Scheduled(jobID)
}

// Start launches the engine's fire workers.
func (s *Service) Start(ctx context.Context) error {
	return s.engine.Start(ctx)
}

// Stop stops the engine, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	return s.engine.Stop(ctx)
}
