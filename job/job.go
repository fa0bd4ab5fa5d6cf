package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
)

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusQueued means the job is waiting for its trigger to fire.
	StatusQueued Status = "queued"
	// StatusRunning means the job's handler is currently executing.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job's handler returned an error.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is an end state. Terminal rows are
// immutable except for the failed → queued re-queue performed by retry.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from → to is a legal status change.
// The table is deliberately closed: queued → running → {completed, failed},
// plus failed → queued when a retry re-queues the job.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusQueued && to == StatusRunning:
		return true
	case from == StatusRunning && to == StatusCompleted:
		return true
	case from == StatusRunning && to == StatusFailed:
		return true
	case from == StatusFailed && to == StatusQueued:
		return true
	}
	return false
}

// Job represents one unit of orchestrated work. The row carries no
// payload: handlers load the task items claimed by the job instead, so
// the trigger and every fire path deal in job IDs only.
type Job struct {
	quartzite.Entity

	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Status      Status     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// New creates a queued job of the given type.
func New(jobType string, opts ...Option) *Job {
	o := buildOptions(opts)
	j := &Job{
		Entity: quartzite.NewEntity(),
		ID:     o.ID,
		Type:   jobType,
		Status: StatusQueued,
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if !o.ScheduledAt.IsZero() {
		at := o.ScheduledAt
		j.ScheduledAt = &at
	}
	return j
}

// Due reports whether the job should fire at or before now. Jobs without
// a scheduled time are due immediately.
func (j *Job) Due(now time.Time) bool {
	return j.ScheduledAt == nil || !j.ScheduledAt.After(now)
}
