package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// CreateReport persists a new report.
func (s *Store) CreateReport(ctx context.Context, r *job.Report) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quartzite_reports (
			id, job_id, file_name, content, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.JobID, r.FileName, r.Content, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return quartzite.ErrReportAlreadyExists
		}
		return fmt.Errorf("quartzite/postgres: create report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (s *Store) GetReport(ctx context.Context, reportID uuid.UUID) (*job.Report, error) {
	var (
		r         job.Report
		statusStr string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, file_name, content, status, created_at, updated_at
		FROM quartzite_reports
		WHERE id = $1`,
		reportID,
	).Scan(&r.ID, &r.JobID, &r.FileName, &r.Content, &statusStr, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, quartzite.ErrReportNotFound
		}
		return nil, fmt.Errorf("quartzite/postgres: get report: %w", err)
	}
	r.Status = job.ReportStatus(statusStr)
	return &r, nil
}

// MarkReportDownloaded flips a report to downloaded status.
func (s *Store) MarkReportDownloaded(ctx context.Context, reportID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_reports
		SET status = $2, updated_at = NOW()
		WHERE id = $1`,
		reportID, string(job.ReportDownloaded),
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: mark report downloaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quartzite.ErrReportNotFound
	}
	return nil
}
