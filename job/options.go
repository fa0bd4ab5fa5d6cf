package job

import (
	"time"

	"github.com/google/uuid"
)

// Options configures job construction.
type Options struct {
	// ID overrides the generated job ID. Zero means generate.
	ID uuid.UUID

	// ScheduledAt schedules the job for future execution. Zero means
	// the job is due as soon as its trigger is installed.
	ScheduledAt time.Time
}

// Option is a functional option for configuring a new job.
type Option func(*Options)

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithID sets an explicit job ID.
func WithID(id uuid.UUID) Option {
	return func(o *Options) {
		o.ID = id
	}
}

// WithScheduledAt schedules the job for execution at a specific time.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) {
		o.ScheduledAt = t
	}
}
