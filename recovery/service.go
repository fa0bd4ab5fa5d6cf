// Package recovery resumes queued work after a process restart.
//
// Triggers live in process memory, so a crash or redeploy loses every
// pending one. The startup pass waits for the store to come up, scans
// for queued jobs old enough not to be owned by a live trigger, and
// rebuilds their triggers. Rows found in Running are reported but never
// re-run: re-executing work that may have partially completed is worse
// than flagging it for an operator.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

const (
	// DefaultGraceWindow is how fresh a queued row must be for recovery
	// to presume a live trigger owns it.
	DefaultGraceWindow = 30 * time.Second

	DefaultReadyAttempts = 5
	DefaultReadyInterval = time.Second
)

// Scheduler rebuilds triggers for recovered jobs. *sched.Service
// satisfies it.
type Scheduler interface {
	Schedule(ctx context.Context, j *job.Job) error
}

// Report aggregates one recovery pass.
type Report struct {
	Scanned          int `json:"scanned"`
	Rescheduled      int `json:"rescheduled"`
	FiredImmediately int `json:"fired_immediately"`
	Failed           int `json:"failed"`
}

// Option configures a Service.
type Option func(*Service)

// WithGraceWindow overrides how old a queued row must be before
// recovery claims it.
func WithGraceWindow(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithReadiness overrides the store readiness poll.
func WithReadiness(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		s.readyAttempts = attempts
		s.readyInterval = interval
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs the one-shot startup recovery pass.
type Service struct {
	store     job.Store
	scheduler Scheduler
	logger    *slog.Logger

	grace         time.Duration
	readyAttempts int
	readyInterval time.Duration
	now           func() time.Time

	mu  sync.Mutex
	ran bool
}

// NewService creates a recovery service.
func NewService(store job.Store, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		scheduler:     scheduler,
		logger:        logger,
		grace:         DefaultGraceWindow,
		readyAttempts: DefaultReadyAttempts,
		readyInterval: DefaultReadyInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recover scans for queued jobs stranded by a previous process and
// rebuilds their triggers. It runs at most once per Service; a second
// call returns quartzite.ErrAlreadyRecovered.
func (s *Service) Recover(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return nil, quartzite.ErrAlreadyRecovered
	}
	s.ran = true
	s.mu.Unlock()

	if err := s.waitReady(ctx); err != nil {
		return nil, err
	}

	s.flagOrphans(ctx)

	// Rows created inside the grace window are presumed owned by
	// triggers the live scheduler installed while we were starting.
	cutoff := s.now().UTC().Add(-s.grace)
	jobs, err := s.store.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{
		CreatedBefore: cutoff,
		ByScheduledAt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery: list queued jobs: %w", err)
	}

	rep := &Report{Scanned: len(jobs)}
	for _, j := range jobs {
		overdue := j.Due(s.now())
		if err := s.scheduler.Schedule(ctx, j); err != nil {
			rep.Failed++
			s.logger.Error("failed to reschedule recovered job",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type),
				slog.Any("error", err))
			continue
		}
		if overdue {
			rep.FiredImmediately++
			s.logger.Info("overdue job recovered, firing immediately",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.Type))
		} else {
			rep.Rescheduled++
			s.logger.Debug("trigger rebuilt for recovered job",
				slog.String("job_id", j.ID.String()),
				slog.Time("scheduled_at", *j.ScheduledAt))
		}
	}

	s.logger.Info("startup recovery finished",
		slog.Int("scanned", rep.Scanned),
		slog.Int("rescheduled", rep.Rescheduled),
		slog.Int("fired_immediately", rep.FiredImmediately),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

// waitReady polls the store until it answers a ping or the attempt
// budget runs out.
func (s *Service) waitReady(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= s.readyAttempts; attempt++ {
		if lastErr = s.store.Ping(ctx); lastErr == nil {
			return nil
		}
		s.logger.Warn("store not ready",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.readyAttempts),
			slog.Any("error", lastErr))
		if attempt == s.readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.readyInterval):
		}
	}
	return fmt.Errorf("recovery: store not ready after %d attempts: %w", s.readyAttempts, lastErr)
}

// flagOrphans logs Running rows left behind by a dead process. They
// are never restarted here.
func (s *Service) flagOrphans(ctx context.Context) {
	running, err := s.store.ListJobsByStatus(ctx, job.StatusRunning, job.ListOpts{})
	if err != nil {
		s.logger.Warn("could not scan for orphaned running jobs", slog.Any("error", err))
		return
	}
	if len(running) == 0 {
		return
	}
	ids := make([]string, len(running))
	for i, j := range running {
		ids[i] = j.ID.String()
	}
	s.logger.Warn("running jobs found from a previous process, leaving them for operator review",
		slog.Int("count", len(running)),
		slog.String("job_ids", strings.Join(ids, ",")))
}
