// Package memory provides a fully in-memory job.Store. Safe for
// concurrent access. Intended for unit testing, examples, and
// development; nothing survives a restart, so startup recovery has
// nothing to recover from this store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

var _ job.Store = (*Store)(nil)

// Store keeps every entity in maps under one RWMutex. Reads hand out
// copies so callers can mutate results without racing the store.
type Store struct {
	mu sync.RWMutex

	jobs    map[uuid.UUID]*job.Job
	tasks   map[uuid.UUID]*job.TaskItem
	reports map[uuid.UUID]*job.Report
	retries map[uuid.UUID]*job.RetryInfo // keyed by job id
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[uuid.UUID]*job.Job),
		tasks:   make(map[uuid.UUID]*job.TaskItem),
		reports: make(map[uuid.UUID]*job.Report),
		retries: make(map[uuid.UUID]*job.RetryInfo),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[j.ID]; exists {
		return quartzite.ErrJobAlreadyExists
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID uuid.UUID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, quartzite.ErrJobNotFound
	}
	return cloneJob(j), nil
}

// UpdateJobStatus performs the guarded transition from → to. The legal
// transition table is checked first; then the row must still hold the
// from status, mirroring the conditional UPDATE a SQL backend runs.
func (m *Store) UpdateJobStatus(_ context.Context, jobID uuid.UUID, from, to job.Status) error {
	if !job.CanTransition(from, to) {
		return quartzite.ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != from {
		return quartzite.ErrJobNotFound
	}
	j.Status = to
	j.Touch()
	return nil
}

// SetJobScheduledAt updates the job's scheduled time. Nil clears it.
func (m *Store) SetJobScheduledAt(_ context.Context, jobID uuid.UUID, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return quartzite.ErrJobNotFound
	}
	if at == nil {
		j.ScheduledAt = nil
	} else {
		t := *at
		j.ScheduledAt = &t
	}
	j.Touch()
	return nil
}

// DeleteJob removes a job row and reverts its claimed tasks to
// unclaimed. Reports are untouched.
func (m *Store) DeleteJob(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return quartzite.ErrJobNotFound
	}
	delete(m.jobs, jobID)

	for _, t := range m.tasks {
		if t.JobID != nil && *t.JobID == jobID {
			t.JobID = nil
			t.Touch()
		}
	}
	return nil
}

// ListJobsByStatus returns jobs in the given status.
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if !opts.CreatedBefore.IsZero() && !j.CreatedAt.Before(opts.CreatedBefore) {
			continue
		}
		result = append(result, cloneJob(j))
	}

	if opts.ByScheduledAt {
		// Scheduled time ascending with unscheduled jobs last, ties
		// broken by creation time.
		sort.Slice(result, func(i, k int) bool {
			a, b := result[i], result[k]
			switch {
			case a.ScheduledAt != nil && b.ScheduledAt != nil:
				if !a.ScheduledAt.Equal(*b.ScheduledAt) {
					return a.ScheduledAt.Before(*b.ScheduledAt)
				}
			case a.ScheduledAt != nil:
				return true
			case b.ScheduledAt != nil:
				return false
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
	} else {
		sort.Slice(result, func(i, k int) bool {
			return result[i].CreatedAt.Before(result[k].CreatedAt)
		})
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Tasks
// ──────────────────────────────────────────────────

// CreateTask persists a new task item.
func (m *Store) CreateTask(_ context.Context, t *job.TaskItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.ID]; exists {
		return quartzite.ErrTaskAlreadyExists
	}
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

// UpdateTask persists changes to an existing task item.
func (m *Store) UpdateTask(_ context.Context, t *job.TaskItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[t.ID]; !ok {
		return quartzite.ErrTaskNotFound
	}
	cp := cloneTask(t)
	cp.Touch()
	m.tasks[t.ID] = cp
	return nil
}

// ClaimTasks assigns the given unclaimed tasks to the job and returns
// how many rows it claimed. Tasks held by another job are skipped,
// never stolen.
func (m *Store) ClaimTasks(_ context.Context, jobID uuid.UUID, taskIDs []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := 0
	for _, taskID := range taskIDs {
		t, ok := m.tasks[taskID]
		if !ok || t.JobID != nil {
			continue
		}
		id := jobID
		t.JobID = &id
		t.Touch()
		claimed++
	}
	return claimed, nil
}

// ReleaseTasks reverts every task claimed by the job to unclaimed and
// returns how many rows it released.
func (m *Store) ReleaseTasks(_ context.Context, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, t := range m.tasks {
		if t.JobID != nil && *t.JobID == jobID {
			t.JobID = nil
			t.Touch()
			released++
		}
	}
	return released, nil
}

// ListTasksForJob returns the tasks claimed by the job, oldest first.
func (m *Store) ListTasksForJob(_ context.Context, jobID uuid.UUID) ([]*job.TaskItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.TaskItem
	for _, t := range m.tasks {
		if t.JobID != nil && *t.JobID == jobID {
			result = append(result, cloneTask(t))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ListUnclaimedTasks returns tasks not held by any job, oldest first.
func (m *Store) ListUnclaimedTasks(_ context.Context, limit int) ([]*job.TaskItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.TaskItem
	for _, t := range m.tasks {
		if t.JobID == nil {
			result = append(result, cloneTask(t))
		}
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Reports
// ──────────────────────────────────────────────────

// CreateReport persists a new report.
func (m *Store) CreateReport(_ context.Context, r *job.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[r.ID]; exists {
		return quartzite.ErrReportAlreadyExists
	}
	m.reports[r.ID] = cloneReport(r)
	return nil
}

// GetReport retrieves a report by ID.
func (m *Store) GetReport(_ context.Context, reportID uuid.UUID) (*job.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[reportID]
	if !ok {
		return nil, quartzite.ErrReportNotFound
	}
	return cloneReport(r), nil
}

// MarkReportDownloaded flips a report to downloaded status.
func (m *Store) MarkReportDownloaded(_ context.Context, reportID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[reportID]
	if !ok {
		return quartzite.ErrReportNotFound
	}
	r.Status = job.ReportDownloaded
	r.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Retry info
// ──────────────────────────────────────────────────

// GetRetryInfo retrieves the retry bookkeeping for a job.
func (m *Store) GetRetryInfo(_ context.Context, jobID uuid.UUID) (*job.RetryInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.retries[jobID]
	if !ok {
		return nil, quartzite.ErrRetryNotFound
	}
	return cloneRetry(info), nil
}

// SaveRetryInfo inserts or updates the retry bookkeeping for a job.
func (m *Store) SaveRetryInfo(_ context.Context, info *job.RetryInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneRetry(info)
	if _, exists := m.retries[info.JobID]; exists {
		cp.Touch()
	}
	m.retries[info.JobID] = cp
	return nil
}

// DeleteRetryInfo removes the retry bookkeeping for a job. Removing an
// absent row is not an error.
func (m *Store) DeleteRetryInfo(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.retries, jobID)
	return nil
}

// ──────────────────────────────────────────────────
// Clones
// ──────────────────────────────────────────────────

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	if j.ScheduledAt != nil {
		t := *j.ScheduledAt
		cp.ScheduledAt = &t
	}
	return &cp
}

func cloneTask(t *job.TaskItem) *job.TaskItem {
	cp := *t
	if t.JobID != nil {
		id := *t.JobID
		cp.JobID = &id
	}
	return &cp
}

func cloneReport(r *job.Report) *job.Report {
	cp := *r
	return &cp
}

func cloneRetry(info *job.RetryInfo) *job.RetryInfo {
	cp := *info
	return &cp
}
