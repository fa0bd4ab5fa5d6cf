package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// GetRetryInfo retrieves the retry bookkeeping for a job.
func (s *Store) GetRetryInfo(ctx context.Context, jobID uuid.UUID) (*job.RetryInfo, error) {
	var info job.RetryInfo
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, retry_count, next_retry_at, last_error, created_at, updated_at
		FROM quartzite_retries
		WHERE job_id = $1`,
		jobID,
	).Scan(&info.JobID, &info.RetryCount, &info.NextRetryAt, &info.LastError,
		&info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, quartzite.ErrRetryNotFound
		}
		return nil, fmt.Errorf("quartzite/postgres: get retry info: %w", err)
	}
	return &info, nil
}

// SaveRetryInfo inserts or updates the retry bookkeeping for a job.
func (s *Store) SaveRetryInfo(ctx context.Context, info *job.RetryInfo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quartzite_retries (
			job_id, retry_count, next_retry_at, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			retry_count = EXCLUDED.retry_count,
			next_retry_at = EXCLUDED.next_retry_at,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()`,
		info.JobID, info.RetryCount, info.NextRetryAt, info.LastError,
		info.CreatedAt, info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: save retry info: %w", err)
	}
	return nil
}

// DeleteRetryInfo removes the retry bookkeeping for a job. Removing an
// absent row is not an error.
func (s *Store) DeleteRetryInfo(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM quartzite_retries WHERE job_id = $1`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: delete retry info: %w", err)
	}
	return nil
}
