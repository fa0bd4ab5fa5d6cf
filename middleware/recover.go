package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors wrapping [quartzite.ErrPanicked] and logged
// with a stack trace, so a panicking handler fails its job instead of
// taking down the process.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("job_type", j.Type),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("%w: job %s: %v", quartzite.ErrPanicked, j.ID, r)
			}
		}()
		return next(ctx)
	}
}
