package sched_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
	"github.com/quartzite/quartzite/sched"
	"github.com/quartzite/quartzite/store/memory"
)

func setupTestService(t *testing.T, fire sched.FireFunc) (*sched.Service, *memory.Store, *job.Registry) {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	reg := job.NewRegistry()

	engine := sched.NewEngine(fire, logger)
	svc := sched.NewService(engine, reg, s, logger)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := svc.Stop(ctx); err != nil {
			t.Fatalf("stop error: %v", err)
		}
	})

	return svc, s, reg
}

func noopHandler() job.Handler {
	return job.HandlerFunc(func(context.Context, job.Store, *job.Job) error {
		return nil
	})
}

func TestService_RejectsUnknownType(t *testing.T) {
	svc, _, _ := setupTestService(t, func(context.Context, uuid.UUID) {})

	j := job.New("nobody.registered")
	err := svc.Schedule(context.Background(), j)
	if !errors.Is(err, quartzite.ErrUnknownJobType) {
		t.Fatalf("got error %v, want ErrUnknownJobType", err)
	}
	if svc.Scheduled(j.ID) {
		t.Fatal("rejected job must not leave a trigger behind")
	}
}

func TestService_SchedulesFutureJob(t *testing.T) {
	var fired atomic.Int32
	svc, _, reg := setupTestService(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	if err := reg.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	j := job.New("report.generate", job.WithScheduledAt(time.Now().UTC().Add(time.Hour)))
	if err := svc.Schedule(context.Background(), j); err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	if !svc.Scheduled(j.ID) {
		t.Fatal("expected a pending trigger")
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("future job fired %d times already", got)
	}
}

func TestService_PastDueFiresImmediately(t *testing.T) {
	var fired atomic.Int32
	svc, _, reg := setupTestService(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	if err := reg.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	j := job.New("report.generate", job.WithScheduledAt(time.Now().UTC().Add(-time.Minute)))
	if err := svc.Schedule(context.Background(), j); err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for past-due job to fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestService_NoScheduledTimeFiresImmediately(t *testing.T) {
	var fired atomic.Int32
	svc, _, reg := setupTestService(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	if err := reg.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	if err := svc.Schedule(context.Background(), job.New("report.generate")); err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for unscheduled job to fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestService_Reschedule(t *testing.T) {
	svc, s, reg := setupTestService(t, func(context.Context, uuid.UUID) {})

	if err := reg.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	j := job.New("report.generate", job.WithScheduledAt(time.Now().UTC().Add(time.Hour)))
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job error: %v", err)
	}
	if err := svc.Schedule(context.Background(), j); err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	at := time.Now().UTC().Add(2 * time.Hour)
	if err := svc.Reschedule(context.Background(), j.ID, at); err != nil {
		t.Fatalf("reschedule error: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.Equal(at) {
		t.Fatalf("scheduled_at = %v, want %v", got.ScheduledAt, at)
	}
	if !svc.Scheduled(j.ID) {
		t.Fatal("expected the replacement trigger to be pending")
	}
}

func TestService_RescheduleMissingJob(t *testing.T) {
	svc, _, _ := setupTestService(t, func(context.Context, uuid.UUID) {})

	err := svc.Reschedule(context.Background(), uuid.New(), time.Now().UTC().Add(time.Hour))
	if !errors.Is(err, quartzite.ErrJobNotFound) {
		t.Fatalf("got error %v, want ErrJobNotFound", err)
	}
}

func TestService_Unschedule(t *testing.T) {
	svc, _, reg := setupTestService(t, func(context.Context, uuid.UUID) {})

	if err := reg.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	j := job.New("report.generate", job.WithScheduledAt(time.Now().UTC().Add(time.Hour)))
	if err := svc.Schedule(context.Background(), j); err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	if !svc.Unschedule(j.ID) {
		t.Fatal("expected Unschedule to remove a trigger")
	}
	if svc.Unschedule(j.ID) {
		t.Fatal("expected second Unschedule to find nothing")
	}
}
