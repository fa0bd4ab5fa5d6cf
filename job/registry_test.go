package job_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

func noopHandler() job.Handler {
	return job.HandlerFunc(func(_ context.Context, _ job.Store, _ *job.Job) error {
		return nil
	})
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := job.NewRegistry()

	called := false
	err := r.Register("report.generate", job.HandlerFunc(func(_ context.Context, _ job.Store, _ *job.Job) error {
		called = true
		return nil
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, err := r.Resolve("report.generate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Execute(context.Background(), nil, job.New("report.generate")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := job.NewRegistry()
	if err := r.Register("task.archive", noopHandler()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.Resolve("report.generat")
	if err == nil {
		t.Fatal("expected error for unregistered job type")
	}
	if !errors.Is(err, quartzite.ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}

	var unknown *job.UnknownJobTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownJobTypeError, got %T", err)
	}
	if unknown.JobType != "report.generat" {
		t.Errorf("JobType = %q, want %q", unknown.JobType, "report.generat")
	}
	// The message enumerates every known type.
	for _, want := range []string{"report.generate", "task.archive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing known type %q", err.Error(), want)
		}
	}
}

func TestRegistry_ResolveEmpty(t *testing.T) {
	r := job.NewRegistry()

	_, err := r.Resolve("anything")
	if !errors.Is(err, quartzite.ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}
	if !strings.Contains(err.Error(), "no types registered") {
		t.Errorf("error %q should state that nothing is registered", err.Error())
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := job.NewRegistry()

	if err := r.Register("", noopHandler()); !errors.Is(err, quartzite.ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
	if err := r.Register("   ", noopHandler()); !errors.Is(err, quartzite.ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType for blank type, got %v", err)
	}
	if err := r.Register("report.generate", nil); !errors.Is(err, quartzite.ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if got := len(r.Types()); got != 0 {
		t.Fatalf("registry should be unchanged, has %d types", got)
	}
}

func TestRegistry_FreezeRejectsRegistration(t *testing.T) {
	r := job.NewRegistry()
	if err := r.Register("report.generate", noopHandler()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Freeze()
	r.Freeze() // idempotent

	err := r.Register("task.archive", noopHandler())
	if !errors.Is(err, quartzite.ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if !r.IsValid("report.generate") {
		t.Fatal("frozen registry lost a registered type")
	}
	if r.IsValid("task.archive") {
		t.Fatal("registration after freeze must not take effect")
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	if err := r.Register("overwrite", job.HandlerFunc(func(_ context.Context, _ job.Store, _ *job.Job) error {
		return errors.New("old")
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("overwrite", job.HandlerFunc(func(_ context.Context, _ job.Store, _ *job.Job) error {
		return errors.New("new")
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, err := r.Resolve("overwrite")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := h.Execute(context.Background(), nil, job.New("overwrite"))
	if got == nil || got.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", got)
	}
}

func TestRegistry_Types(t *testing.T) {
	r := job.NewRegistry()
	for _, name := range []string{"job-c", "job-a", "job-b"} {
		if err := r.Register(name, noopHandler()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []string{"job-a", "job-b", "job-c"}

	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Same result after freeze, via the lock-free path.
	r.Freeze()
	got = r.Types()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frozen types[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
