package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credit-core.io/creditcore/internal/domain"
)

// FailedJobRepository is the dead letter queue store.
type FailedJobRepository struct {
	pool *pgxpool.Pool
}

const failedJobColumns = `
	id, job_id, task_name, job_args, job_kwargs, error_type, error_message,
	error_traceback, retry_count, max_retries, status, is_retryable,
	pending_job_id, created_at, updated_at`

// InsertParams carries the full failure context.
type InsertParams struct {
	JobID          string
	TaskName       string
	JobArgs        map[string]interface{}
	JobKwargs      map[string]interface{}
	ErrorType      string
	ErrorMessage   string
	ErrorTraceback string
	RetryCount     int
	MaxRetries     int
	IsRetryable    bool
	PendingJobID   *uuid.UUID
}

// Insert records a dead-lettered job. Re-recording the same job id updates
// the error context instead of failing, so a crashed DLQ write can repeat.
func (r *FailedJobRepository) Insert(ctx context.Context, params InsertParams) (*domain.FailedJob, error) {
	if params.JobArgs == nil {
		params.JobArgs = map[string]interface{}{}
	}
	if params.JobKwargs == nil {
		params.JobKwargs = map[string]interface{}{}
	}
	var traceback *string
	if params.ErrorTraceback != "" {
		traceback = &params.ErrorTraceback
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO failed_jobs (
			job_id, task_name, job_args, job_kwargs, error_type, error_message,
			error_traceback, retry_count, max_retries, is_retryable, pending_job_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id) DO UPDATE SET
			error_type = EXCLUDED.error_type,
			error_message = EXCLUDED.error_message,
			error_traceback = EXCLUDED.error_traceback,
			retry_count = EXCLUDED.retry_count,
			is_retryable = EXCLUDED.is_retryable
		RETURNING `+failedJobColumns,
		params.JobID, params.TaskName, params.JobArgs, params.JobKwargs,
		params.ErrorType, params.ErrorMessage, traceback,
		params.RetryCount, params.MaxRetries, params.IsRetryable, params.PendingJobID)

	job, err := scanFailedJob(row)
	if err != nil {
		return nil, classifyDBError(err, "insert failed job")
	}
	return job, nil
}

// ListRetryable returns retryable pending rows for the DLQ auto-retry job.
func (r *FailedJobRepository) ListRetryable(ctx context.Context, limit int) ([]*domain.FailedJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+failedJobColumns+`
		FROM failed_jobs
		WHERE is_retryable = TRUE AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, classifyDBError(err, "list retryable failed jobs")
	}
	defer rows.Close()

	var jobs []*domain.FailedJob
	for rows.Next() {
		job, err := scanFailedJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// List returns dead-letter rows, newest first.
func (r *FailedJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.FailedJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+failedJobColumns+`
		FROM failed_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classifyDBError(err, "list failed jobs")
	}
	defer rows.Close()

	var jobs []*domain.FailedJob
	for rows.Next() {
		job, err := scanFailedJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetByID fetches one dead-letter row.
func (r *FailedJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.FailedJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+failedJobColumns+`
		FROM failed_jobs WHERE id = $1`, id)

	job, err := scanFailedJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch failed job")
	}
	return job, nil
}

// UpdateStatus moves a dead-letter row through its review lifecycle.
func (r *FailedJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FailedJobStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE failed_jobs SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return classifyDBError(err, "update failed job status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFailedJob(row pgx.Row) (*domain.FailedJob, error) {
	var job domain.FailedJob
	err := row.Scan(
		&job.ID, &job.JobID, &job.TaskName, &job.JobArgs, &job.JobKwargs,
		&job.ErrorType, &job.ErrorMessage, &job.ErrorTraceback,
		&job.RetryCount, &job.MaxRetries, &job.Status, &job.IsRetryable,
		&job.PendingJobID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
