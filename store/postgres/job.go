package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quartzite_jobs (
			id, type, status, scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.Type, string(j.Status), j.ScheduledAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return quartzite.ErrJobAlreadyExists
		}
		return fmt.Errorf("quartzite/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, status, scheduled_at, created_at, updated_at
		FROM quartzite_jobs
		WHERE id = $1`,
		jobID,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, quartzite.ErrJobNotFound
		}
		return nil, fmt.Errorf("quartzite/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJobStatus performs the guarded transition from → to. The from
// status is part of the WHERE clause, so a concurrent writer who got
// there first makes this a zero-row update rather than a lost update.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, from, to job.Status) error {
	if !job.CanTransition(from, to) {
		return quartzite.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_jobs
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		jobID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quartzite.ErrJobNotFound
	}
	return nil
}

// SetJobScheduledAt updates the job's scheduled time. Nil clears it.
func (s *Store) SetJobScheduledAt(ctx context.Context, jobID uuid.UUID, at *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_jobs
		SET scheduled_at = $2, updated_at = NOW()
		WHERE id = $1`,
		jobID, at,
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: set job scheduled_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quartzite.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job row and reverts its claimed tasks to
// unclaimed, atomically.
func (s *Store) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	var removed int
	err := s.pool.QueryRow(ctx, `
		WITH removed AS (
			DELETE FROM quartzite_jobs WHERE id = $1
			RETURNING id
		), released AS (
			UPDATE quartzite_tasks
			SET job_id = NULL, updated_at = NOW()
			WHERE job_id IN (SELECT id FROM removed)
		)
		SELECT COUNT(*) FROM removed`,
		jobID,
	).Scan(&removed)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: delete job: %w", err)
	}
	if removed == 0 {
		return quartzite.ErrJobNotFound
	}
	return nil
}

// ListJobsByStatus returns jobs in the given status.
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `
		SELECT id, type, status, scheduled_at, created_at, updated_at
		FROM quartzite_jobs
		WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if !opts.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, opts.CreatedBefore)
		argIdx++
	}

	if opts.ByScheduledAt {
		query += " ORDER BY scheduled_at ASC NULLS LAST, created_at ASC"
	} else {
		query += " ORDER BY created_at ASC"
	}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quartzite/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		statusStr string
	)
	err := row.Scan(&j.ID, &j.Type, &statusStr, &j.ScheduledAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(statusStr)
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("quartzite/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quartzite/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
