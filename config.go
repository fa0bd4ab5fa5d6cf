package quartzite

import (
	"fmt"
	"time"
)

// Config holds configuration for the orchestration engine.
type Config struct {
	// WorkerConcurrency is the maximum number of job envelopes executing
	// concurrently. Fires beyond this limit queue in FIFO order.
	WorkerConcurrency int

	// AutoCleanupCompleted enables cleanup of a job as soon as it
	// completes, according to the cleanup policy flags below.
	AutoCleanupCompleted bool

	// RemoveFromScheduler removes the job's trigger during cleanup.
	RemoveFromScheduler bool

	// RemoveFromDatabase deletes the job row during cleanup. Task items
	// referencing the job revert to unclaimed.
	RemoveFromDatabase bool

	// RetentionPeriod bounds how long completed jobs are kept before the
	// sweeper cleans them. Zero keeps them until explicitly cleaned.
	RetentionPeriod time.Duration

	// SweepSchedule is an optional cron expression for periodic bulk
	// cleanup of completed jobs. Empty disables the sweeper.
	SweepSchedule string

	// MaxRetries is the number of retry attempts after a job's first
	// failure. Once exhausted the job remains failed.
	MaxRetries int

	// JobTimeout bounds a single handler execution. Zero means no limit.
	JobTimeout time.Duration

	// RecoveryGraceWindow excludes recently created queued jobs from
	// startup recovery; their triggers are presumed live.
	RecoveryGraceWindow time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerConcurrency:    10,
		AutoCleanupCompleted: true,
		RemoveFromScheduler:  true,
		RemoveFromDatabase:   false,
		RetentionPeriod:      0,
		MaxRetries:           3,
		JobTimeout:           0,
		RecoveryGraceWindow:  30 * time.Second,
		ShutdownTimeout:      30 * time.Second,
	}
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("quartzite: worker concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("quartzite: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.RetentionPeriod < 0 {
		return fmt.Errorf("quartzite: retention period must not be negative, got %s", c.RetentionPeriod)
	}
	if c.RecoveryGraceWindow < 0 {
		return fmt.Errorf("quartzite: recovery grace window must not be negative, got %s", c.RecoveryGraceWindow)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("quartzite: shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
