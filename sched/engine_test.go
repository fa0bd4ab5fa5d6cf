package sched_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/sched"
)

func startEngine(t *testing.T, fire sched.FireFunc, opts ...sched.EngineOption) *sched.Engine {
	t.Helper()
	e := sched.NewEngine(fire, slog.Default(), opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.Stop(ctx); err != nil {
			t.Fatalf("stop error: %v", err)
		}
	})
	return e
}

func TestEngine_StartStop(t *testing.T) {
	e := sched.NewEngine(func(context.Context, uuid.UUID) {}, slog.Default())

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	// Double start should be no-op.
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := e.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	// Double stop should be no-op.
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestEngine_FiresImmediately(t *testing.T) {
	var fired atomic.Int32
	e := startEngine(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	e.Install(uuid.New(), time.Time{})

	deadline := time.After(5 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for trigger to fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestEngine_FiresAtScheduledTime(t *testing.T) {
	var fired atomic.Int32
	e := startEngine(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	jobID := uuid.New()
	e.Install(jobID, time.Now().Add(60*time.Millisecond))

	if !e.Scheduled(jobID) {
		t.Fatal("expected a pending trigger")
	}
	if got := e.TriggerCount(); got != 1 {
		t.Fatalf("trigger count = %d, want 1", got)
	}

	deadline := time.After(5 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for trigger to fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if e.Scheduled(jobID) {
		t.Fatal("trigger should be consumed after firing")
	}
}

func TestEngine_ReplaceFiresOnce(t *testing.T) {
	var fired atomic.Int32
	e := startEngine(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	jobID := uuid.New()
	e.Install(jobID, time.Now().Add(time.Hour))
	e.Install(jobID, time.Now().Add(30*time.Millisecond))

	if got := e.TriggerCount(); got != 1 {
		t.Fatalf("trigger count after replace = %d, want 1", got)
	}

	deadline := time.After(5 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for trigger to fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// The hour-away trigger was replaced, so no second fire shows up.
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
}

func TestEngine_Cancel(t *testing.T) {
	var fired atomic.Int32
	e := startEngine(t, func(context.Context, uuid.UUID) {
		fired.Add(1)
	})

	jobID := uuid.New()
	e.Install(jobID, time.Now().Add(50*time.Millisecond))

	if !e.Cancel(jobID) {
		t.Fatal("expected Cancel to report an existing trigger")
	}
	if e.Cancel(jobID) {
		t.Fatal("expected second Cancel to report no trigger")
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled trigger fired %d times", got)
	}
}

func TestEngine_StopClearsTriggers(t *testing.T) {
	e := sched.NewEngine(func(context.Context, uuid.UUID) {}, slog.Default())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	e.Install(uuid.New(), time.Now().Add(time.Hour))
	e.Install(uuid.New(), time.Now().Add(2*time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	if got := e.TriggerCount(); got != 0 {
		t.Fatalf("trigger count after stop = %d, want 0", got)
	}
}

func TestEngine_SerializesFires(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	e := startEngine(t, func(context.Context, uuid.UUID) {
		started.Add(1)
		<-release
	}, sched.WithLimits(sched.Limits{Concurrency: 1}))

	e.Install(uuid.New(), time.Time{})
	e.Install(uuid.New(), time.Time{})

	deadline := time.After(5 * time.Second)
	for started.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// The single worker is occupied, so the second fire must wait.
	time.Sleep(100 * time.Millisecond)
	if got := started.Load(); got != 1 {
		t.Fatalf("%d fires ran concurrently, want 1", got)
	}
	if got := e.ActiveFires(); got != 1 {
		t.Fatalf("active fires = %d, want 1", got)
	}

	close(release)

	deadline = time.After(5 * time.Second)
	for started.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the second fire")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestGate_Accounting(t *testing.T) {
	g := sched.NewGate(sched.Limits{})

	if err := g.Admit(context.Background()); err != nil {
		t.Fatalf("admit error: %v", err)
	}
	if got := g.Active(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	g.Done()
	if got := g.Active(); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}

	// Done on an idle gate must not underflow.
	g.Done()
	if got := g.Active(); got != 0 {
		t.Fatalf("active after extra Done = %d, want 0", got)
	}
}

func TestGate_RateLimitSmooths(t *testing.T) {
	g := sched.NewGate(sched.Limits{RateLimit: 100, RateBurst: 1})

	start := time.Now()
	for range 3 {
		if err := g.Admit(context.Background()); err != nil {
			t.Fatalf("admit error: %v", err)
		}
		g.Done()
	}

	// At 100/s with burst 1, the second and third admits wait ~10ms each.
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("three admits took %v, expected the limiter to spread them", elapsed)
	}
}

func TestGate_AdmitHonorsContext(t *testing.T) {
	g := sched.NewGate(sched.Limits{RateLimit: 0.001, RateBurst: 1})

	// Drain the lone burst token.
	if err := g.Admit(context.Background()); err != nil {
		t.Fatalf("admit error: %v", err)
	}
	g.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Admit(ctx); err == nil {
		t.Fatal("expected a context error from the rate-limited admit")
	}
}
