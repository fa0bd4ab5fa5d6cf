package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quartzite/quartzite"
	"github.com/quartzite/quartzite/job"
)

// CreateTask persists a new task item.
func (s *Store) CreateTask(ctx context.Context, t *job.TaskItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quartzite_tasks (
			id, title, content, done, job_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Title, t.Content, t.Done, t.JobID, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return quartzite.ErrTaskAlreadyExists
		}
		return fmt.Errorf("quartzite/postgres: create task: %w", err)
	}
	return nil
}

// UpdateTask persists changes to an existing task item.
func (s *Store) UpdateTask(ctx context.Context, t *job.TaskItem) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_tasks
		SET title = $2, content = $3, done = $4, job_id = $5, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Title, t.Content, t.Done, t.JobID,
	)
	if err != nil {
		return fmt.Errorf("quartzite/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quartzite.ErrTaskNotFound
	}
	return nil
}

// ClaimTasks assigns the given unclaimed tasks to the job. The
// job_id IS NULL guard means rows held by another job are skipped,
// never stolen; the returned count tells the caller how many it got.
func (s *Store) ClaimTasks(ctx context.Context, jobID uuid.UUID, taskIDs []uuid.UUID) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_tasks
		SET job_id = $1, updated_at = NOW()
		WHERE id = ANY($2) AND job_id IS NULL`,
		jobID, taskIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("quartzite/postgres: claim tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReleaseTasks reverts every task claimed by the job to unclaimed.
func (s *Store) ReleaseTasks(ctx context.Context, jobID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quartzite_tasks
		SET job_id = NULL, updated_at = NOW()
		WHERE job_id = $1`,
		jobID,
	)
	if err != nil {
		return 0, fmt.Errorf("quartzite/postgres: release tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTasksForJob returns the tasks claimed by the job.
func (s *Store) ListTasksForJob(ctx context.Context, jobID uuid.UUID) ([]*job.TaskItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content, done, job_id, created_at, updated_at
		FROM quartzite_tasks
		WHERE job_id = $1
		ORDER BY created_at ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("quartzite/postgres: list tasks for job: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListUnclaimedTasks returns tasks not held by any job, oldest first.
func (s *Store) ListUnclaimedTasks(ctx context.Context, limit int) ([]*job.TaskItem, error) {
	query := `
		SELECT id, title, content, done, job_id, created_at, updated_at
		FROM quartzite_tasks
		WHERE job_id IS NULL
		ORDER BY created_at ASC`
	args := []interface{}{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quartzite/postgres: list unclaimed tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*job.TaskItem, error) {
	var t job.TaskItem
	err := row.Scan(&t.ID, &t.Title, &t.Content, &t.Done, &t.JobID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*job.TaskItem, error) {
	var tasks []*job.TaskItem
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("quartzite/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quartzite/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
