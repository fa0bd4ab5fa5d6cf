// Package notify delivers job status events to subscribers. Delivery is
// best-effort by contract: a notification that cannot be delivered is
// logged and dropped, never surfaced to the job pipeline. The envelope
// persists a status change before the matching event is published, so
// subscribers can always re-read the authoritative row.
//
// The in-process [Broker] fans events out over per-job topics. The
// [RedisNotifier] extends delivery across processes, and the [Hub]
// exposes a WebSocket surface for browsers.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/job"
)

// Kind identifies the kind of job event.
type Kind string

const (
	// KindStatus signals a job status transition.
	KindStatus Kind = "status"
	// KindProgress signals handler-reported progress.
	KindProgress Kind = "progress"
	// KindReportGenerated signals that a job produced a report.
	KindReportGenerated Kind = "report_generated"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Kind identifies the event.
	Kind Kind `json:"kind" msgpack:"kind"`

	// JobID is the job this event belongs to.
	JobID uuid.UUID `json:"job_id" msgpack:"job_id"`

	// JobType names the job's registered type for status events.
	JobType string `json:"job_type,omitempty" msgpack:"job_type,omitempty"`

	// Status carries the new status for status events.
	Status job.Status `json:"status,omitempty" msgpack:"status,omitempty"`

	// Error carries the handler's error message when Status is Failed.
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`

	// Progress carries the completion percentage for progress events.
	Progress int `json:"progress,omitempty" msgpack:"progress,omitempty"`

	// ReportID carries the report for report_generated events.
	ReportID uuid.UUID `json:"report_id,omitempty" msgpack:"report_id,omitempty"`

	// At is when the event was emitted.
	At time.Time `json:"at" msgpack:"at"`
}

// Topic names follow a pattern:
//
//	job:<jobID>  — events for a specific job
//	jobs         — every job event

// TopicAll receives every job event.
const TopicAll = "jobs"

// JobTopic returns the topic name for a specific job.
func JobTopic(jobID uuid.UUID) string { return "job:" + jobID.String() }

// ParseTopic extracts the job ID from a per-job topic string. The
// second return is false for the global topic or a malformed name.
func ParseTopic(topic string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(topic, "job:")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ValidateTopic checks whether a topic string is subscribable.
func ValidateTopic(topic string) error {
	if topic == TopicAll {
		return nil
	}
	if _, ok := ParseTopic(topic); !ok {
		return fmt.Errorf("notify: invalid topic %q", topic)
	}
	return nil
}

// topicsFor returns the topics an event is published to.
func topicsFor(evt *Event) []string {
	return []string{TopicAll, JobTopic(evt.JobID)}
}
