// Package runner executes fired jobs. The Runner drives each job
// through the Queued→Running→{Completed,Failed} state machine: it
// re-reads the job row, claims it with a guarded status update, invokes
// the registered handler through the middleware chain, and persists the
// terminal status before announcing it. Every status change is durable
// before the matching notification or [Emitter] event goes out, so
// subscribers can always re-read the authoritative row.
//
// Panics escape the Runner unless [middleware.Recover] is part of the
// chain; production wiring installs it outermost.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
	"github.com/quartzite/quartzite/middleware"
	"github.com/quartzite/quartzite/notify"
)

// Outcome describes how a fired run ended.
type Outcome int

const (
	// OutcomeSkipped means the run was a no-op: the job was missing,
	// no longer queued, or a store error stopped the envelope before a
	// terminal status was reached.
	OutcomeSkipped Outcome = iota

	// OutcomeCompleted means the handler succeeded and the job is
	// durably Completed.
	OutcomeCompleted

	// OutcomeFailed means the handler failed and the job is durably
	// Failed. Run returns the handler's error alongside.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Finalizer runs after every fired run, whatever the outcome. The
// cleanup service plugs in here; its policy decides whether anything
// actually happens.
type Finalizer func(ctx context.Context, jobID uuid.UUID)

// Emitter receives lifecycle events, each after the matching status
// change is durable. The hook registry satisfies it.
type Emitter interface {
	EmitJobStarted(ctx context.Context, j *job.Job)
	EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration)
	EmitJobFailed(ctx context.Context, j *job.Job, jobErr error)
}

// nopEmitter is the default when no emitter is installed.
type nopEmitter struct{}

func (nopEmitter) EmitJobStarted(context.Context, *job.Job)                  {}
func (nopEmitter) EmitJobCompleted(context.Context, *job.Job, time.Duration) {}
func (nopEmitter) EmitJobFailed(context.Context, *job.Job, error)            {}

// Option configures a Runner.
type Option func(*Runner)

// WithMiddleware sets the middleware chain handlers run through. The
// first middleware is the outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runner) { r.mw = middleware.Chain(mws...) }
}

// WithFinalizer installs the guaranteed post-run step.
func WithFinalizer(f Finalizer) Option {
	return func(r *Runner) { r.finalize = f }
}

// WithEmitter installs the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(r *Runner) { r.emit = e }
}

// Runner executes one job per call, concurrently safe across calls.
type Runner struct {
	store    job.Store
	registry *job.Registry
	notifier notify.Notifier
	mw       middleware.Middleware
	finalize Finalizer
	emit     Emitter
	logger   *slog.Logger
}

// New creates a Runner. A nil notifier disables notifications.
func New(
	store job.Store,
	registry *job.Registry,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:    store,
		registry: registry,
		notifier: notifier,
		mw:       middleware.Chain(),
		emit:     nopEmitter{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives one fired job through the execution state machine. The
// job id arrives from the scheduler; the row is re-read here so a
// stale snapshot is never executed. Only jobs still Queued run; a
// trigger firing for a deleted or already-claimed job is a logged
// no-op, not an error.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (Outcome, error) {
	if r.finalize != nil {
		defer r.finalize(ctx, jobID)
	}

	j, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, quartzite.ErrJobNotFound) {
			// Deleted after being scheduled; a valid race, not an error.
			r.logger.Info("job gone before firing, skipping",
				slog.String("job_id", jobID.String()),
			)
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, fmt.Errorf("run job %s: load: %w", jobID, err)
	}

	if j.Status != job.StatusQueued {
		r.logger.Info("stale trigger for non-queued job, skipping",
			slog.String("job_id", jobID.String()),
			slog.String("status", string(j.Status)),
		)
		return OutcomeSkipped, nil
	}

	handler, err := r.registry.Resolve(j.Type)
	if err != nil {
		r.logger.Error("fired job has no registered handler",
			slog.String("job_id", jobID.String()),
			slog.String("job_type", j.Type),
		)
		return OutcomeSkipped, fmt.Errorf("run job %s: %w", jobID, err)
	}

	if err := r.transition(ctx, j, job.StatusQueued, job.StatusRunning); err != nil {
		if errors.Is(err, quartzite.ErrJobNotFound) {
			// Another fire won the Queued→Running claim.
			r.logger.Info("lost the claim on a queued job, skipping",
				slog.String("job_id", jobID.String()),
			)
			return OutcomeSkipped, nil
		}
		return OutcomeSkipped, fmt.Errorf("run job %s: mark running: %w", jobID, err)
	}
	r.notifier.NotifyStatus(ctx, j)
	r.emit.EmitJobStarted(ctx, j)

	start := time.Now()
	handlerErr := r.mw(ctx, j, func(ctx context.Context) error {
		return handler.Execute(ctx, r.store, j)
	})
	elapsed := time.Since(start)

	if handlerErr != nil {
		if err := r.transition(ctx, j, job.StatusRunning, job.StatusFailed); err != nil {
			// The row stays Running: forcing a terminal status that was
			// never made durable would lie to observers. Startup recovery
			// flags such rows on the next run.
			r.logger.Error("failed status not persisted",
				slog.String("job_id", jobID.String()),
				slog.String("handler_error", handlerErr.Error()),
				slog.String("error", err.Error()),
			)
			return OutcomeSkipped, fmt.Errorf("run job %s: mark failed: %w", jobID, err)
		}
		r.notifier.NotifyFailed(ctx, j, handlerErr.Error())
		r.emit.EmitJobFailed(ctx, j, handlerErr)
		return OutcomeFailed, handlerErr
	}

	if err := r.transition(ctx, j, job.StatusRunning, job.StatusCompleted); err != nil {
		r.logger.Error("completed status not persisted",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return OutcomeSkipped, fmt.Errorf("run job %s: mark completed: %w", jobID, err)
	}
	r.notifier.NotifyStatus(ctx, j)
	r.emit.EmitJobCompleted(ctx, j, elapsed)

	return OutcomeCompleted, nil
}

// transition persists the guarded status change and mirrors it on the
// local copy. Notification stays with the caller so it always follows
// the durable write.
func (r *Runner) transition(ctx context.Context, j *job.Job, from, to job.Status) error {
	if err := r.store.UpdateJobStatus(ctx, j.ID, from, to); err != nil {
		return err
	}
	j.Status = to
	return nil
}
