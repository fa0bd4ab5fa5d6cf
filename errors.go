package quartzite

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("quartzite: no store configured")
	ErrStoreClosed = errors.New("quartzite: store closed")
	ErrNotReady    = errors.New("quartzite: store not ready")

	// Not found errors.
	ErrJobNotFound    = errors.New("quartzite: job not found")
	ErrTaskNotFound   = errors.New("quartzite: task not found")
	ErrReportNotFound = errors.New("quartzite: report not found")
	ErrRetryNotFound  = errors.New("quartzite: retry info not found")

	// Registry errors.
	ErrUnknownJobType = errors.New("quartzite: unknown job type")
	ErrInvalidJobType = errors.New("quartzite: invalid job type")
	ErrNilHandler     = errors.New("quartzite: nil handler")
	ErrRegistryFrozen = errors.New("quartzite: registry is frozen")

	// Conflict errors.
	ErrJobAlreadyExists    = errors.New("quartzite: job already exists")
	ErrTaskAlreadyExists   = errors.New("quartzite: task already exists")
	ErrReportAlreadyExists = errors.New("quartzite: report already exists")
	ErrTasksClaimed        = errors.New("quartzite: one or more tasks already claimed")

	// State errors.
	ErrInvalidTransition = errors.New("quartzite: invalid status transition")
	ErrJobNotRunnable    = errors.New("quartzite: job is not queued")
	ErrJobNotCompleted   = errors.New("quartzite: job is not completed")
	ErrJobRunning        = errors.New("quartzite: job is running")
	ErrPanicked          = errors.New("quartzite: handler panicked")

	// Lifecycle errors.
	ErrAlreadyStarted   = errors.New("quartzite: engine already started")
	ErrNotStarted       = errors.New("quartzite: engine not started")
	ErrAlreadyRecovered = errors.New("quartzite: startup recovery already ran")
)
