package job

import "context"

// Handler executes the work for one job type. The store is passed in so
// handlers can load the task items their job claimed and persist any
// artifacts; the job row itself carries no payload.
//
// Handlers should honor ctx cancellation and return promptly; the
// envelope persists the failure and propagates the error.
type Handler interface {
	Execute(ctx context.Context, store Store, j *Job) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, store Store, j *Job) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, store Store, j *Job) error {
	return f(ctx, store, j)
}
