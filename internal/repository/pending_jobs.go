package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"credit-core.io/creditcore/internal/domain"
)

// PendingJobRepository manages the visible job table fed by the enqueue
// trigger and drained by the queue bridge.
type PendingJobRepository struct {
	pool *pgxpool.Pool
}

const pendingJobColumns = `
	id, application_id, task_name, job_args, job_kwargs, status,
	queue_job_id, created_at, enqueued_at, processed_at, updated_at,
	error_message, retry_count`

// ClaimPendingTx selects up to limit pending rows inside tx with row-level
// locks, skipping rows already claimed by a concurrent bridge tick
// (FOR UPDATE SKIP LOCKED). Rows stay pending until MarkEnqueuedTx commits
// in the same transaction as the queue push — the at-least-once guarantee.
func (r *PendingJobRepository) ClaimPendingTx(ctx context.Context, tx pgx.Tx, limit int) ([]*domain.PendingJob, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, classifyDBError(err, "claim pending jobs")
	}
	defer rows.Close()

	var jobs []*domain.PendingJob
	for rows.Next() {
		job, err := scanPendingJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkEnqueuedTx transitions a claimed row to enqueued and records the work
// queue handle, within the bridge transaction.
func (r *PendingJobRepository) MarkEnqueuedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, queueJobID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'enqueued', queue_job_id = $2, enqueued_at = now()
		WHERE id = $1 AND status = 'pending'`, id, queueJobID)
	return classifyDBError(err, "mark pending job enqueued")
}

// MarkProcessing transitions an enqueued row to processing when a worker
// picks it up.
func (r *PendingJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'processing', retry_count = retry_count + 1
		WHERE id = $1 AND status IN ('enqueued', 'processing')`, id)
	return classifyDBError(err, "mark pending job processing")
}

// MarkCompleted finishes a row. message lands in error_message for
// skip-path completions ("skipped (already processing)").
func (r *PendingJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, message string) error {
	var msg *string
	if message != "" {
		msg = &message
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'completed', processed_at = now(), error_message = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`, id, msg)
	return classifyDBError(err, "mark pending job completed")
}

// MarkFailed finishes a row as failed; completed/failed rows are terminal.
func (r *PendingJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'failed', processed_at = now(), error_message = $2
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`, id, errorMessage)
	return classifyDBError(err, "mark pending job failed")
}

// MarkPendingForRetry releases a processing row back to pending, used on
// worker shutdown before the task completed.
func (r *PendingJobRepository) MarkPendingForRetry(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'pending', queue_job_id = NULL, enqueued_at = NULL
		WHERE id = $1 AND status IN ('enqueued', 'processing')`, id)
	return classifyDBError(err, "release pending job for retry")
}

// ReclaimOrphans resets processing rows older than cutoff back to pending.
// Covers workers that died holding a row; the lock TTL has expired by then.
func (r *PendingJobRepository) ReclaimOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_jobs
		SET status = 'pending', queue_job_id = NULL, enqueued_at = NULL
		WHERE status = 'processing' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, classifyDBError(err, "reclaim orphaned pending jobs")
	}
	return tag.RowsAffected(), nil
}

// GetByID fetches one row.
func (r *PendingJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs WHERE id = $1`, id)

	job, err := scanPendingJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch pending job")
	}
	return job, nil
}

// GetByApplicationID returns the newest job row for an application.
func (r *PendingJobRepository) GetByApplicationID(ctx context.Context, applicationID uuid.UUID) (*domain.PendingJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+pendingJobColumns+`
		FROM pending_jobs
		WHERE application_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, applicationID)

	job, err := scanPendingJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch pending job by application")
	}
	return job, nil
}

// Insert creates a pending row outside the trigger path. Only the DLQ
// auto-retry job uses this; application creation always enqueues through
// the database trigger.
func (r *PendingJobRepository) Insert(ctx context.Context, applicationID uuid.UUID, taskName string, jobArgs map[string]interface{}) (*domain.PendingJob, error) {
	if jobArgs == nil {
		jobArgs = map[string]interface{}{}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO pending_jobs (application_id, task_name, job_args)
		VALUES ($1, $2, $3)
		RETURNING `+pendingJobColumns,
		applicationID, taskName, jobArgs)

	job, err := scanPendingJob(row)
	if err != nil {
		return nil, classifyDBError(mapConstraintError(err), "insert pending job")
	}
	return job, nil
}

func scanPendingJob(row pgx.Row) (*domain.PendingJob, error) {
	var job domain.PendingJob
	err := row.Scan(
		&job.ID, &job.ApplicationID, &job.TaskName, &job.JobArgs, &job.JobKwargs,
		&job.Status, &job.QueueJobID, &job.CreatedAt, &job.EnqueuedAt,
		&job.ProcessedAt, &job.UpdatedAt, &job.ErrorMessage, &job.RetryCount,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
