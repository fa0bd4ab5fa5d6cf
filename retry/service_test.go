package retry_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/backoff"
	"github.com/quartzite/quartzite/job"
	"github.com/quartzite/quartzite/retry"
	"github.com/quartzite/quartzite/store/memory"
)

type schedCall struct {
	jobID uuid.UUID
	at    time.Time
}

// fakeScheduler records Reschedule calls.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []schedCall
}

func (f *fakeScheduler) Reschedule(_ context.Context, jobID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, schedCall{jobID: jobID, at: at})
	return nil
}

func (f *fakeScheduler) Calls() []schedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schedCall(nil), f.calls...)
}

// createFailedJob persists a job and walks it to Failed.
func createFailedJob(t *testing.T, s *memory.Store) *job.Job {
	t.Helper()
	ctx := context.Background()
	j := job.New("report.generate")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create job error: %v", err)
	}
	for _, step := range []struct{ from, to job.Status }{
		{job.StatusQueued, job.StatusRunning},
		{job.StatusRunning, job.StatusFailed},
	} {
		if err := s.UpdateJobStatus(ctx, j.ID, step.from, step.to); err != nil {
			t.Fatalf("%s -> %s: %v", step.from, step.to, err)
		}
	}
	j.Status = job.StatusFailed
	return j
}

// failAgain walks a requeued job back to Failed for the next round.
func failAgain(t *testing.T, s *memory.Store, jobID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for _, step := range []struct{ from, to job.Status }{
		{job.StatusQueued, job.StatusRunning},
		{job.StatusRunning, job.StatusFailed},
	} {
		if err := s.UpdateJobStatus(ctx, jobID, step.from, step.to); err != nil {
			t.Fatalf("%s -> %s: %v", step.from, step.to, err)
		}
	}
}

func TestService_FirstFailureIsFlatMinute(t *testing.T) {
	s := memory.New()
	sched := &fakeScheduler{}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := retry.NewService(s, sched, slog.Default(), retry.WithClock(func() time.Time { return now }))

	j := createFailedJob(t, s)

	info, err := svc.RecordFailure(context.Background(), j.ID, errors.New("disk full"))
	if err != nil {
		t.Fatalf("record failure error: %v", err)
	}
	if info.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", info.RetryCount)
	}
	if info.LastError != "disk full" {
		t.Errorf("last error = %q, want %q", info.LastError, "disk full")
	}
	want := now.Add(time.Minute)
	if !info.NextRetryAt.Equal(want) {
		t.Errorf("next retry at = %v, want flat %v", info.NextRetryAt, want)
	}

	if err := svc.ScheduleRetry(context.Background(), j.ID, info); err != nil {
		t.Fatalf("schedule retry error: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Errorf("status = %q, want requeued %q", got.Status, job.StatusQueued)
	}

	calls := sched.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d reschedule calls, want 1", len(calls))
	}
	if calls[0].jobID != j.ID || !calls[0].at.Equal(want) {
		t.Errorf("rescheduled (%s, %v), want (%s, %v)", calls[0].jobID, calls[0].at, j.ID, want)
	}
}

func TestService_BackoffDoublesPerRetry(t *testing.T) {
	s := memory.New()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := retry.NewService(s, &fakeScheduler{}, slog.Default(),
		retry.WithClock(func() time.Time { return now }),
		// Exponential without jitter keeps the ladder deterministic.
		retry.WithStrategy(backoff.NewExponential(time.Minute, 0)),
	)

	// RecordFailure only touches the bookkeeping, so a bare id is enough.
	jobID := uuid.New()

	rounds := []struct {
		wantDelay  time.Duration
		wantBudget bool
	}{
		{time.Minute, true},      // first failure, flat
		{time.Minute, true},      // count 1: 1m * 2^0
		{2 * time.Minute, true},  // count 2: 1m * 2^1
		{4 * time.Minute, false}, // count 3: budget gone
	}

	for i, round := range rounds {
		info, err := svc.RecordFailure(context.Background(), jobID, fmt.Errorf("round %d", i))
		if err != nil {
			t.Fatalf("round %d: record failure error: %v", i, err)
		}
		if info.RetryCount != i {
			t.Errorf("round %d: retry count = %d, want %d", i, info.RetryCount, i)
		}
		if got := info.NextRetryAt.Sub(now); got != round.wantDelay {
			t.Errorf("round %d: delay = %v, want %v", i, got, round.wantDelay)
		}
		if got := svc.ShouldRetry(info); got != round.wantBudget {
			t.Errorf("round %d: ShouldRetry = %v, want %v", i, got, round.wantBudget)
		}
	}

	// The exhausted row survives with the final cause for inspection.
	info, err := svc.Info(context.Background(), jobID)
	if err != nil {
		t.Fatalf("info error: %v", err)
	}
	if info.RetryCount != 3 {
		t.Errorf("retained retry count = %d, want 3", info.RetryCount)
	}
	if info.LastError != "round 3" {
		t.Errorf("retained last error = %q, want %q", info.LastError, "round 3")
	}
}

func TestService_JitterStaysWithinBounds(t *testing.T) {
	s := memory.New()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := retry.NewService(s, &fakeScheduler{}, slog.Default(), retry.WithClock(func() time.Time { return now }))

	jobID := uuid.New()

	// First failure is flat; the second draws jitter.
	if _, err := svc.RecordFailure(context.Background(), jobID, errors.New("boom")); err != nil {
		t.Fatalf("record failure error: %v", err)
	}
	info, err := svc.RecordFailure(context.Background(), jobID, errors.New("boom"))
	if err != nil {
		t.Fatalf("record failure error: %v", err)
	}

	delay := info.NextRetryAt.Sub(now)
	if delay < time.Minute || delay >= time.Minute+30*time.Second {
		t.Errorf("delay = %v, want within [1m, 1m30s)", delay)
	}
}

func TestService_ShouldRetry(t *testing.T) {
	svc := retry.NewService(memory.New(), &fakeScheduler{}, slog.Default())

	tests := []struct {
		name string
		info *job.RetryInfo
		want bool
	}{
		// Callers record the failure first, so nil means there is
		// nothing to consult.
		{"nil info", nil, false},
		{"fresh failure", &job.RetryInfo{RetryCount: 0}, true},
		{"under budget", &job.RetryInfo{RetryCount: 2}, true},
		{"budget exhausted", &job.RetryInfo{RetryCount: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.ShouldRetry(tt.info); got != tt.want {
				t.Errorf("ShouldRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_RetryBudgetExhaustion(t *testing.T) {
	s := memory.New()
	sched := &fakeScheduler{}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := retry.NewService(s, sched, slog.Default(), retry.WithClock(func() time.Time { return now }))

	j := createFailedJob(t, s)
	ctx := context.Background()

	// Default budget of three: the fourth failure finds it spent.
	for round := 0; round < 4; round++ {
		if round > 0 {
			failAgain(t, s, j.ID)
		}
		info, err := svc.RecordFailure(ctx, j.ID, errors.New("still broken"))
		if err != nil {
			t.Fatalf("round %d: record failure error: %v", round, err)
		}
		if !svc.ShouldRetry(info) {
			if round != 3 {
				t.Fatalf("budget exhausted at round %d, want round 3", round)
			}
			break
		}
		if round == 3 {
			t.Fatal("round 3 should have exhausted the budget")
		}
		if err := svc.ScheduleRetry(ctx, j.ID, info); err != nil {
			t.Fatalf("round %d: schedule retry error: %v", round, err)
		}
	}

	if got := len(sched.Calls()); got != 3 {
		t.Errorf("got %d reschedule calls, want 3", got)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job error: %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want terminal %q", got.Status, job.StatusFailed)
	}

	info, err := svc.Info(ctx, j.ID)
	if err != nil {
		t.Fatalf("info error: %v", err)
	}
	if info.RetryCount != 3 {
		t.Errorf("retained retry count = %d, want 3", info.RetryCount)
	}
}

func TestService_MissingJobIsDropped(t *testing.T) {
	s := memory.New()
	sched := &fakeScheduler{}
	svc := retry.NewService(s, sched, slog.Default())

	// No job row exists for this id.
	jobID := uuid.New()
	info, err := svc.RecordFailure(context.Background(), jobID, errors.New("boom"))
	if err != nil {
		t.Fatalf("record failure error: %v", err)
	}
	if err := svc.ScheduleRetry(context.Background(), jobID, info); err != nil {
		t.Fatalf("expected a logged no-op, got %v", err)
	}
	if got := len(sched.Calls()); got != 0 {
		t.Fatalf("got %d reschedule calls, want 0", got)
	}

	// The bookkeeping survives for inspection even without a job row.
	if _, err := svc.Info(context.Background(), jobID); err != nil {
		t.Fatalf("info error: %v", err)
	}
}

func TestService_Clear(t *testing.T) {
	s := memory.New()
	svc := retry.NewService(s, &fakeScheduler{}, slog.Default())

	jobID := uuid.New()
	if _, err := svc.RecordFailure(context.Background(), jobID, errors.New("boom")); err != nil {
		t.Fatalf("record failure error: %v", err)
	}

	if err := svc.Clear(context.Background(), jobID); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	if _, err := svc.Info(context.Background(), jobID); !errors.Is(err, quartzite.ErrRetryNotFound) {
		t.Fatalf("expected ErrRetryNotFound after clear, got %v", err)
	}

	// Clearing a job that never failed is a no-op.
	if err := svc.Clear(context.Background(), uuid.New()); err != nil {
		t.Fatalf("clear of absent info error: %v", err)
	}
}
