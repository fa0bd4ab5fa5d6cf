package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// sweepParser supports standard 5-field cron and descriptors like "@every 1h".
var sweepParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Sweeper runs bulk cleanup on a cron cadence, so retained Completed
// rows eventually leave the store once their retention window passes.
type Sweeper struct {
	svc      *Service
	schedule cronlib.Schedule
	expr     string
	logger   *slog.Logger
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides the sweeper's clock.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper that runs CleanupAllCompleted per the
// given cron expression (standard 5-field or a descriptor such as
// "@every 1h").
func NewSweeper(svc *Service, expr string, logger *slog.Logger, opts ...SweeperOption) (*Sweeper, error) {
	schedule, err := sweepParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		svc:      svc,
		schedule: schedule,
		expr:     expr,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("cleanup sweeper started", slog.String("schedule", s.expr))
	return nil
}

// Stop signals the sweeper to stop and waits for the loop to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cleanup sweeper stopped")
	return nil
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.svc.CleanupAllCompleted(context.Background()); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
