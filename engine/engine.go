// Package engine wires the quartzite subsystems together: job
// registry, scheduler, execution envelope, retry, cleanup, recovery,
// lifecycle hooks, and notifier. It owns the application-facing job
// operations and the engine lifecycle.
//
// This package exists to sit above every subsystem: the root quartzite
// package defines Config, Entity, and the error sentinels (imported by
// job, sched, etc.) and so cannot import those packages back. Nothing
// below the engine imports across subsystems; the engine is the only
// package that sees them all.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/backoff"
	"github.com/quartzite/quartzite/cleanup"
	"github.com/quartzite/quartzite/hook"
	"github.com/quartzite/quartzite/job"
	mw "github.com/quartzite/quartzite/middleware"
	"github.com/quartzite/quartzite/notify"
	"github.com/quartzite/quartzite/recovery"
	"github.com/quartzite/quartzite/retry"
	"github.com/quartzite/quartzite/runner"
	"github.com/quartzite/quartzite/sched"
)

// scopeName is the instrumentation scope for tracer and meter lookups.
const scopeName = "github.com/quartzite/quartzite"

// Engine is the assembled orchestration subsystem. Build one with a
// store, register handlers, then Start. An Engine starts at most once
// and cannot be restarted after Stop.
type Engine struct {
	cfg      quartzite.Config
	store    job.Store
	logger   *slog.Logger
	registry *job.Registry
	hooks    *hook.Registry
	notifier notify.Notifier

	schedEngine *sched.Engine
	scheduler   *sched.Service
	runner      *runner.Runner
	retries     *retry.Service
	cleaner     *cleanup.Service
	sweeper     *cleanup.Sweeper
	recoverer   *recovery.Service

	exts     []hook.Extension
	mws      []mw.Middleware
	strategy backoff.Strategy

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
	stopped bool
}

// Build assembles an Engine around the store. The engine takes
// ownership of the store: Stop closes it. Options apply in order over
// DefaultConfig; the merged config is validated before any subsystem
// is constructed.
func Build(store job.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, quartzite.ErrNoStore
	}

	eng := &Engine{
		cfg:      quartzite.DefaultConfig(),
		store:    store,
		logger:   slog.Default(),
		registry: job.NewRegistry(),
		notifier: notify.Nop{},
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	if eng.strategy == nil {
		eng.strategy = backoff.DefaultStrategy()
	}

	eng.hooks = hook.NewRegistry(eng.logger)
	for _, e := range eng.exts {
		eng.hooks.Register(e)
	}

	// Tracing and metrics middleware honor custom providers; without
	// one they fall back to the otel globals.
	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(scopeName))
	}
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(scopeName))
	}

	// Default stack: recover → tracing → metrics → logging → timeout,
	// then user middleware innermost.
	defaultMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Timeout(eng.logger, eng.cfg.JobTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.schedEngine = sched.NewEngine(eng.fire, eng.logger,
		sched.WithLimits(sched.Limits{Concurrency: eng.cfg.WorkerConcurrency}),
	)
	eng.scheduler = sched.NewService(eng.schedEngine, eng.registry, store, eng.logger)

	eng.cleaner = cleanup.NewService(store, eng.scheduler, eng.logger,
		cleanup.WithPolicy(cleanup.Policy{
			AutoCleanCompleted:  eng.cfg.AutoCleanupCompleted,
			RemoveFromScheduler: eng.cfg.RemoveFromScheduler,
			RemoveFromDatabase:  eng.cfg.RemoveFromDatabase,
			Retention:           eng.cfg.RetentionPeriod,
		}),
	)

	eng.retries = retry.NewService(store, eng.scheduler, eng.logger,
		retry.WithMaxRetries(eng.cfg.MaxRetries),
		retry.WithStrategy(eng.strategy),
	)

	eng.runner = runner.New(store, eng.registry, eng.notifier, eng.logger,
		runner.WithMiddleware(allMws...),
		runner.WithFinalizer(eng.finalize),
		runner.WithEmitter(eng.hooks),
	)

	eng.recoverer = recovery.NewService(store, eng.scheduler, eng.logger,
		recovery.WithGraceWindow(eng.cfg.RecoveryGraceWindow),
	)

	if eng.cfg.SweepSchedule != "" {
		sweeper, err := cleanup.NewSweeper(eng.cleaner, eng.cfg.SweepSchedule, eng.logger)
		if err != nil {
			return nil, fmt.Errorf("sweep schedule: %w", err)
		}
		eng.sweeper = sweeper
	}

	return eng, nil
}

// Register adds a handler for a job type. Registration is only allowed
// before Start; the registry freezes when the engine starts.
func (eng *Engine) Register(jobType string, h job.Handler) error {
	eng.mu.Lock()
	started := eng.started
	eng.mu.Unlock()
	if started {
		return quartzite.ErrAlreadyStarted
	}
	return eng.registry.Register(jobType, h)
}

// Start brings the engine up: it freezes the registry, migrates the
// store when the backend supports it, runs startup recovery, and then
// launches the scheduler workers and the retention sweeper. A recovery
// failure aborts startup.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	if eng.started {
		eng.mu.Unlock()
		return quartzite.ErrAlreadyStarted
	}
	eng.started = true
	eng.mu.Unlock()

	eng.registry.Freeze()

	if m, ok := eng.store.(interface{ Migrate(context.Context) error }); ok {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}

	report, err := eng.recoverer.Recover(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if eng.sweeper != nil {
		if err := eng.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
	}

	eng.logger.Info("engine started",
		slog.Int("concurrency", eng.cfg.WorkerConcurrency),
		slog.Int("job_types", len(eng.registry.Types())),
		slog.Int("recovered", report.Rescheduled+report.FiredImmediately),
	)
	return nil
}

// Stop shuts the engine down in reverse start order, bounded by the
// configured shutdown timeout: sweeper, then scheduler (waiting out
// in-flight envelopes), then the shutdown hooks, then the store.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if !eng.started || eng.stopped {
		eng.mu.Unlock()
		return quartzite.ErrNotStarted
	}
	eng.stopped = true
	eng.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
	defer cancel()

	if eng.sweeper != nil {
		if err := eng.sweeper.Stop(ctx); err != nil {
			eng.logger.Error("sweeper stop error", slog.String("error", err.Error()))
		}
	}
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}

	eng.hooks.EmitShutdown(ctx)

	if err := eng.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	eng.logger.Info("engine stopped")
	return nil
}

// fire is the FireFunc installed on the scheduling engine. It runs the
// envelope and settles the aftermath: success clears the retry ledger,
// failure either schedules the next attempt or lets Failed stand.
func (eng *Engine) fire(ctx context.Context, jobID uuid.UUID) {
	outcome, err := eng.runner.Run(ctx, jobID)

	switch outcome {
	case runner.OutcomeCompleted:
		if clearErr := eng.retries.Clear(ctx, jobID); clearErr != nil {
			eng.logger.Warn("retry bookkeeping not cleared after success",
				slog.String("job_id", jobID.String()),
				slog.String("error", clearErr.Error()),
			)
		}
	case runner.OutcomeFailed:
		eng.settleFailure(ctx, jobID, err)
	default:
		if err != nil {
			eng.logger.Error("fired job skipped",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// settleFailure records the failure and decides between another
// attempt and exhaustion. Exhausted jobs keep their Failed row and
// retry bookkeeping for inspection; only the trigger is dropped.
func (eng *Engine) settleFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	info, err := eng.retries.RecordFailure(ctx, jobID, cause)
	if err != nil {
		eng.logger.Error("job failure not recorded",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if !eng.retries.ShouldRetry(info) {
		eng.cleaner.CleanupSchedulerOnly(jobID)
		eng.logger.Warn("retries exhausted, job stays failed",
			slog.String("job_id", jobID.String()),
			slog.Int("retry_count", info.RetryCount),
			slog.String("last_error", info.LastError),
		)
		return
	}

	if err := eng.retries.ScheduleRetry(ctx, jobID, info); err != nil {
		eng.logger.Error("retry not scheduled",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if j, err := eng.store.GetJob(ctx, jobID); err == nil {
		eng.hooks.EmitRetryScheduled(ctx, j, info.RetryCount+1, info.NextRetryAt)
	}
}

// finalize is the envelope's guaranteed post-run step.
func (eng *Engine) finalize(ctx context.Context, jobID uuid.UUID) {
	res := eng.cleaner.Finalize(ctx, jobID)
	if res.Cleaned {
		eng.hooks.EmitJobCleaned(ctx, jobID, res.SchedulerRemoved, res.StoreRemoved)
	}
}

// Registry returns the job type registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Hooks returns the lifecycle hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Scheduler returns the scheduling service.
func (eng *Engine) Scheduler() *sched.Service { return eng.scheduler }

// Store returns the engine's store.
func (eng *Engine) Store() job.Store { return eng.store }
