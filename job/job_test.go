package job_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite/job"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to job.Status }{
		{job.StatusQueued, job.StatusRunning},
		{job.StatusRunning, job.StatusCompleted},
		{job.StatusRunning, job.StatusFailed},
		{job.StatusFailed, job.StatusQueued},
	}
	for _, tc := range legal {
		if !job.CanTransition(tc.from, tc.to) {
			t.Errorf("%s → %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to job.Status }{
		{job.StatusQueued, job.StatusCompleted},
		{job.StatusQueued, job.StatusFailed},
		{job.StatusCompleted, job.StatusRunning},
		{job.StatusCompleted, job.StatusQueued},
		{job.StatusFailed, job.StatusRunning},
		{job.StatusRunning, job.StatusQueued},
		{job.StatusRunning, job.StatusRunning},
	}
	for _, tc := range illegal {
		if job.CanTransition(tc.from, tc.to) {
			t.Errorf("%s → %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if job.StatusQueued.Terminal() || job.StatusRunning.Terminal() {
		t.Error("queued and running are not terminal")
	}
	if !job.StatusCompleted.Terminal() || !job.StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestNew(t *testing.T) {
	j := job.New("report.generate")
	if j.ID == uuid.Nil {
		t.Error("expected generated ID")
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %q, want %q", j.Status, job.StatusQueued)
	}
	if j.ScheduledAt != nil {
		t.Error("expected no scheduled time")
	}
	if j.CreatedAt.IsZero() || j.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNew_WithOptions(t *testing.T) {
	id := uuid.New()
	at := time.Now().Add(time.Hour).UTC()

	j := job.New("task.archive", job.WithID(id), job.WithScheduledAt(at))
	if j.ID != id {
		t.Errorf("ID = %s, want %s", j.ID, id)
	}
	if j.ScheduledAt == nil || !j.ScheduledAt.Equal(at) {
		t.Errorf("ScheduledAt = %v, want %v", j.ScheduledAt, at)
	}
}

func TestJob_Due(t *testing.T) {
	now := time.Now()

	j := job.New("report.generate")
	if !j.Due(now) {
		t.Error("job without scheduled time is due immediately")
	}

	j = job.New("report.generate", job.WithScheduledAt(now.Add(-time.Minute)))
	if !j.Due(now) {
		t.Error("past-due job should be due")
	}

	j = job.New("report.generate", job.WithScheduledAt(now.Add(time.Minute)))
	if j.Due(now) {
		t.Error("future job should not be due")
	}
}
