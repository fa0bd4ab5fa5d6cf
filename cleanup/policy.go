package cleanup

import "time"

// Policy controls what cleanup touches. Scheduler state and store
// state have deliberately decoupled lifetimes: triggers are transient
// and safe to discard once a job is terminal, while rows default to
// retention as the audit trail.
type Policy struct {
	// AutoCleanCompleted runs cleanup automatically after each
	// successful run, via the execution finalizer.
	AutoCleanCompleted bool

	// RemoveFromScheduler drops the job's pending trigger. On by
	// default.
	RemoveFromScheduler bool

	// RemoveFromDatabase deletes the job row. Off by default so the
	// audit trail survives cleanup.
	RemoveFromDatabase bool

	// Retention is how long Completed rows are kept before bulk
	// cleanup may remove them. Zero means immediately eligible.
	Retention time.Duration
}

// DefaultPolicy drops triggers and keeps rows.
func DefaultPolicy() Policy {
	return Policy{RemoveFromScheduler: true}
}
