package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/backoff"
	"github.com/quartzite/quartzite/hook"
	"github.com/quartzite/quartzite/middleware"
	"github.com/quartzite/quartzite/notify"
)

// Option configures an Engine during Build. Options apply in order, so
// a field option after WithConfig overrides that one field.
type Option func(*Engine)

// WithConfig replaces the whole configuration.
func WithConfig(cfg quartzite.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the structured logger shared by all subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		if l != nil {
			eng.logger = l
		}
	}
}

// WithNotifier sets the status notifier. Use notify.Multi to fan out
// to several.
func WithNotifier(n notify.Notifier) Option {
	return func(eng *Engine) {
		if n != nil {
			eng.notifier = n
		}
	}
}

// WithExtension registers a lifecycle hook extension.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware appends middleware inside the default chain.
func WithMiddleware(m middleware.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. Defaults to
// backoff.DefaultStrategy (exponential with jitter).
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.strategy = b }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. Unset means the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. Unset means the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithConcurrency sets the maximum number of concurrently executing
// job envelopes.
func WithConcurrency(n int) Option {
	return func(eng *Engine) { eng.cfg.WorkerConcurrency = n }
}

// WithAutoCleanup toggles cleanup of each job as soon as it completes.
func WithAutoCleanup(on bool) Option {
	return func(eng *Engine) { eng.cfg.AutoCleanupCompleted = on }
}

// WithRemoveFromScheduler toggles dropping the trigger during cleanup.
func WithRemoveFromScheduler(on bool) Option {
	return func(eng *Engine) { eng.cfg.RemoveFromScheduler = on }
}

// WithRemoveFromDatabase toggles deleting the job row during cleanup.
func WithRemoveFromDatabase(on bool) Option {
	return func(eng *Engine) { eng.cfg.RemoveFromDatabase = on }
}

// WithRetention sets how long completed jobs are kept before the
// sweeper may remove them.
func WithRetention(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.RetentionPeriod = d }
}

// WithSweepSchedule sets the cron expression for periodic bulk
// cleanup. Empty disables the sweeper.
func WithSweepSchedule(expr string) Option {
	return func(eng *Engine) { eng.cfg.SweepSchedule = expr }
}

// WithMaxRetries sets the retry budget after a job's first failure.
func WithMaxRetries(n int) Option {
	return func(eng *Engine) { eng.cfg.MaxRetries = n }
}

// WithJobTimeout bounds a single handler execution. Zero means no
// limit.
func WithJobTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.JobTimeout = d }
}

// WithRecoveryGraceWindow excludes queued jobs younger than d from
// startup recovery.
func WithRecoveryGraceWindow(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.RecoveryGraceWindow = d }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.ShutdownTimeout = d }
}
