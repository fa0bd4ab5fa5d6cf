package recovery_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
	"github.com/quartzite/quartzite/recovery"
	"github.com/quartzite/quartzite/store/memory"
)

// fakeScheduler records which jobs recovery handed back.
type fakeScheduler struct {
	mu     sync.Mutex
	calls  []uuid.UUID
	failID uuid.UUID
}

func (f *fakeScheduler) Schedule(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j.ID == f.failID {
		return errors.New("forced schedule failure")
	}
	f.calls = append(f.calls, j.ID)
	return nil
}

func (f *fakeScheduler) scheduled(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

// seedQueued persists a queued job aged into the past, optionally with
// a scheduled time.
func seedQueued(t *testing.T, s job.Store, age time.Duration, at *time.Time) *job.Job {
	t.Helper()
	j := job.New("report.generate")
	j.CreatedAt = time.Now().UTC().Add(-age)
	j.ScheduledAt = at
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return j
}

func timePtr(t time.Time) *time.Time { return &t }

func TestService_RecoverRunsOnce(t *testing.T) {
	svc := recovery.NewService(memory.New(), &fakeScheduler{}, slog.Default())

	if _, err := svc.Recover(context.Background()); err != nil {
		t.Fatalf("first pass error: %v", err)
	}
	if _, err := svc.Recover(context.Background()); !errors.Is(err, quartzite.ErrAlreadyRecovered) {
		t.Fatalf("second pass: got %v, want ErrAlreadyRecovered", err)
	}
}

func TestService_RecoverReschedulesStrandedJobs(t *testing.T) {
	s := memory.New()
	now := time.Now().UTC()

	past := seedQueued(t, s, time.Hour, timePtr(now.Add(-30*time.Minute)))
	future := seedQueued(t, s, time.Hour, timePtr(now.Add(time.Hour)))
	unscheduled := seedQueued(t, s, time.Hour, nil)
	fresh := seedQueued(t, s, 0, nil)

	sched := &fakeScheduler{}
	svc := recovery.NewService(s, sched, slog.Default())

	rep, err := svc.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}

	if rep.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", rep.Scanned)
	}
	if rep.Rescheduled != 1 {
		t.Errorf("rescheduled = %d, want 1", rep.Rescheduled)
	}
	if rep.FiredImmediately != 2 {
		t.Errorf("fired immediately = %d, want 2", rep.FiredImmediately)
	}
	if rep.Failed != 0 {
		t.Errorf("failed = %d, want 0", rep.Failed)
	}

	// Soonest trigger first, unscheduled last. The fresh row is inside
	// the grace window and belongs to the live scheduler.
	want := []uuid.UUID{past.ID, future.ID, unscheduled.ID}
	sched.mu.Lock()
	got := append([]uuid.UUID(nil), sched.calls...)
	sched.mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("scheduled %d jobs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
	if sched.scheduled(fresh.ID) {
		t.Error("job inside the grace window must not be rescheduled")
	}
}

func TestService_RecoverIsolatesFailures(t *testing.T) {
	s := memory.New()
	bad := seedQueued(t, s, time.Hour, nil)
	good := seedQueued(t, s, time.Hour, nil)

	sched := &fakeScheduler{failID: bad.ID}
	svc := recovery.NewService(s, sched, slog.Default())

	rep, err := svc.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}

	if rep.Failed != 1 {
		t.Errorf("failed = %d, want 1", rep.Failed)
	}
	if !sched.scheduled(good.ID) {
		t.Error("the failing job must not stop the rest of the pass")
	}
}

func TestService_RecoverLeavesRunningJobsAlone(t *testing.T) {
	s := memory.New()
	orphan := seedQueued(t, s, time.Hour, nil)
	if err := s.UpdateJobStatus(context.Background(), orphan.ID, job.StatusQueued, job.StatusRunning); err != nil {
		t.Fatalf("seed running job: %v", err)
	}

	sched := &fakeScheduler{}
	svc := recovery.NewService(s, sched, slog.Default())

	rep, err := svc.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}

	if rep.Scanned != 0 {
		t.Errorf("scanned = %d, want 0", rep.Scanned)
	}
	if sched.scheduled(orphan.ID) {
		t.Error("running jobs must never be rescheduled")
	}
	got, err := s.GetJob(context.Background(), orphan.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusRunning {
		t.Errorf("status = %s, want running untouched", got.Status)
	}
}

// downStore fails pings until the store "comes up".
type downStore struct {
	*memory.Store
	failures int
	pings    int
}

func (d *downStore) Ping(ctx context.Context) error {
	d.pings++
	if d.pings <= d.failures {
		return errors.New("connection refused")
	}
	return d.Store.Ping(ctx)
}

func TestService_RecoverWaitsForStore(t *testing.T) {
	s := &downStore{Store: memory.New(), failures: 2}
	seedQueued(t, s.Store, time.Hour, nil)

	sched := &fakeScheduler{}
	svc := recovery.NewService(s, sched, slog.Default(),
		recovery.WithReadiness(3, time.Millisecond))

	rep, err := svc.Recover(context.Background())
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}
	if rep.Scanned != 1 {
		t.Errorf("scanned = %d, want 1", rep.Scanned)
	}
}

func TestService_RecoverAbortsWhenStoreNeverReady(t *testing.T) {
	s := &downStore{Store: memory.New(), failures: 100}
	svc := recovery.NewService(s, &fakeScheduler{}, slog.Default(),
		recovery.WithReadiness(3, time.Millisecond))

	if _, err := svc.Recover(context.Background()); err == nil {
		t.Fatal("expected an error when the store stays down")
	}
	if s.pings != 3 {
		t.Errorf("pings = %d, want exactly the attempt budget", s.pings)
	}
}
