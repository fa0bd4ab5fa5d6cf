package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/quartzite/quartzite/job"
)

// Timeout returns middleware that enforces a per-job execution deadline.
// When d is positive, a context.WithTimeout wraps the handler call; once
// the deadline is exceeded the context is cancelled and the handler
// should return context.DeadlineExceeded. A zero or negative d disables
// the deadline.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
