package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/repository"
)

// ---------------------------------------------------------------------------
// Partition assurance (daily)
// ---------------------------------------------------------------------------

// PartitionAssuranceArgs ensures monthly partitions exist ahead of time and
// converts hot tables to range partitioning once they cross the row
// threshold.
type PartitionAssuranceArgs struct{}

// Kind returns the job kind identifier.
func (PartitionAssuranceArgs) Kind() string { return "partition_assurance" }

// InsertOpts dedupes to at most one run per day.
func (PartitionAssuranceArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// partitionedTables are the growth tables kept under monthly partitions.
var partitionedTables = []string{"applications", "audit_logs", "webhook_events"}

// PartitionAssuranceWorker runs the partition helper functions.
type PartitionAssuranceWorker struct {
	river.WorkerDefaults[PartitionAssuranceArgs]
	pool        *pgxpool.Pool
	monthsAhead int
	threshold   int64
}

// NewPartitionAssuranceWorker creates the worker.
func NewPartitionAssuranceWorker(pool *pgxpool.Pool, monthsAhead int, threshold int64) *PartitionAssuranceWorker {
	if monthsAhead <= 0 {
		monthsAhead = 3
	}
	if threshold <= 0 {
		threshold = 1_000_000
	}
	return &PartitionAssuranceWorker{pool: pool, monthsAhead: monthsAhead, threshold: threshold}
}

// Work checks thresholds and creates missing partitions.
func (w *PartitionAssuranceWorker) Work(ctx context.Context, _ *river.Job[PartitionAssuranceArgs]) error {
	for _, table := range partitionedTables {
		var report map[string]interface{}
		err := w.pool.QueryRow(ctx,
			`SELECT check_and_partition_table($1, $2, 'created_at')`,
			table, w.threshold,
		).Scan(&report)
		if err != nil {
			return fmt.Errorf("check partitioning for %s: %w", table, err)
		}

		var created int
		if err := w.pool.QueryRow(ctx,
			`SELECT ensure_future_partitions($1, $2)`,
			table, w.monthsAhead,
		).Scan(&created); err != nil {
			return fmt.Errorf("ensure partitions for %s: %w", table, err)
		}

		logger.Info("Partition assurance completed",
			zap.String("table", table),
			zap.Any("report", report),
			zap.Int("partitions_created", created),
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Webhook event TTL cleanup (daily)
// ---------------------------------------------------------------------------

// WebhookCleanupArgs deletes webhook_events past the 30-day retention.
type WebhookCleanupArgs struct{}

// Kind returns the job kind identifier.
func (WebhookCleanupArgs) Kind() string { return "webhook_events_cleanup" }

// InsertOpts dedupes to at most one run per day.
func (WebhookCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// WebhookCleanupWorker enforces the retention window.
type WebhookCleanupWorker struct {
	river.WorkerDefaults[WebhookCleanupArgs]
	repos *repository.Repositories
}

// NewWebhookCleanupWorker creates the worker.
func NewWebhookCleanupWorker(repos *repository.Repositories) *WebhookCleanupWorker {
	return &WebhookCleanupWorker{repos: repos}
}

// Work removes expired rows.
func (w *WebhookCleanupWorker) Work(ctx context.Context, _ *river.Job[WebhookCleanupArgs]) error {
	cutoff := time.Now().UTC().Add(-domain.WebhookEventRetention)
	deleted, err := w.repos.WebhookEvents.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete webhook events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("Webhook event cleanup completed",
		zap.Int64("deleted_rows", deleted),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Dead letter auto-retry (hourly)
// ---------------------------------------------------------------------------

// DLQRetryArgs re-enqueues retryable dead-lettered jobs.
type DLQRetryArgs struct{}

// Kind returns the job kind identifier.
func (DLQRetryArgs) Kind() string { return "failed_jobs_retry" }

// InsertOpts dedupes to at most one run per hour.
func (DLQRetryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// DLQRetryWorker selects retryable failed_jobs and writes fresh
// pending_jobs rows. The queue bridge picks them up on its next tick, so
// the retry path reuses the normal crash-safe handoff.
type DLQRetryWorker struct {
	river.WorkerDefaults[DLQRetryArgs]
	repos *repository.Repositories
	limit int
}

// NewDLQRetryWorker creates the worker.
func NewDLQRetryWorker(repos *repository.Repositories) *DLQRetryWorker {
	return &DLQRetryWorker{repos: repos, limit: 100}
}

// Work re-enqueues eligible dead letters.
func (w *DLQRetryWorker) Work(ctx context.Context, _ *river.Job[DLQRetryArgs]) error {
	retryable, err := w.repos.FailedJobs.ListRetryable(ctx, w.limit)
	if err != nil {
		return fmt.Errorf("list retryable failed jobs: %w", err)
	}
	if len(retryable) == 0 {
		logger.Debug("No retryable failed jobs found")
		return nil
	}

	retried := 0
	for _, failed := range retryable {
		applicationID, ok := applicationIDFromArgs(failed.JobArgs)
		if !ok {
			logger.Warn("Failed job has no application id, skipping",
				zap.String("job_id", failed.JobID),
			)
			continue
		}

		jobArgs := map[string]interface{}{
			"application_id": applicationID.String(),
			"triggered_by":   "failed_job_retry",
			"original_job":   failed.JobID,
		}
		if _, err := w.repos.PendingJobs.Insert(ctx, applicationID, failed.TaskName, jobArgs); err != nil {
			logger.Error("Failed to re-enqueue dead letter",
				zap.String("job_id", failed.JobID),
				zap.Error(err),
			)
			continue
		}
		if err := w.repos.FailedJobs.UpdateStatus(ctx, failed.ID, domain.FailedJobRetried); err != nil {
			logger.Error("Failed to mark dead letter retried",
				zap.String("job_id", failed.JobID),
				zap.Error(err),
			)
			continue
		}
		retried++
	}

	logger.Info("Dead letter auto-retry completed",
		zap.Int("checked", len(retryable)),
		zap.Int("retried", retried),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Orphan sweep (every 5 minutes)
// ---------------------------------------------------------------------------

// OrphanSweepArgs reclaims pending_jobs stuck in processing.
type OrphanSweepArgs struct{}

// Kind returns the job kind identifier.
func (OrphanSweepArgs) Kind() string { return "pending_jobs_orphan_sweep" }

// InsertOpts dedupes to one run per sweep window.
func (OrphanSweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 5 * time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// OrphanSweepWorker resets processing rows older than twice the task
// timeout back to pending. Workers that died mid-task released their lock
// by TTL long before this fires, so the reclaim cannot race a live holder.
type OrphanSweepWorker struct {
	river.WorkerDefaults[OrphanSweepArgs]
	repos       *repository.Repositories
	taskTimeout time.Duration
}

// NewOrphanSweepWorker creates the worker.
func NewOrphanSweepWorker(repos *repository.Repositories, taskTimeout time.Duration) *OrphanSweepWorker {
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	return &OrphanSweepWorker{repos: repos, taskTimeout: taskTimeout}
}

// Work reclaims orphaned rows.
func (w *OrphanSweepWorker) Work(ctx context.Context, _ *river.Job[OrphanSweepArgs]) error {
	cutoff := time.Now().UTC().Add(-2 * w.taskTimeout)
	reclaimed, err := w.repos.PendingJobs.ReclaimOrphans(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reclaim orphaned pending jobs: %w", err)
	}
	if reclaimed > 0 {
		logger.Warn("Reclaimed orphaned pending jobs",
			zap.Int64("reclaimed", reclaimed),
			zap.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Stale PENDING auto-cancel (daily, disabled unless configured)
// ---------------------------------------------------------------------------

// StalePendingCancelArgs cancels PENDING applications older than the
// configured TTL.
type StalePendingCancelArgs struct{}

// Kind returns the job kind identifier.
func (StalePendingCancelArgs) Kind() string { return "stale_pending_cancel" }

// InsertOpts dedupes to at most one run per day.
func (StalePendingCancelArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// StalePendingCancelWorker expires abandoned applications.
type StalePendingCancelWorker struct {
	river.WorkerDefaults[StalePendingCancelArgs]
	repos *repository.Repositories
	ttl   time.Duration
}

// NewStalePendingCancelWorker creates the worker. Zero ttl disables it.
func NewStalePendingCancelWorker(repos *repository.Repositories, ttl time.Duration) *StalePendingCancelWorker {
	return &StalePendingCancelWorker{repos: repos, ttl: ttl}
}

// Work cancels stale PENDING rows.
func (w *StalePendingCancelWorker) Work(ctx context.Context, _ *river.Job[StalePendingCancelArgs]) error {
	if w.ttl <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().Add(-w.ttl)
	stale, err := w.repos.Applications.ListStalePending(ctx, cutoff, 500)
	if err != nil {
		return fmt.Errorf("list stale pending applications: %w", err)
	}

	cancelled := 0
	for _, app := range stale {
		if _, err := w.repos.Applications.Transition(ctx, repository.TransitionParams{
			ApplicationID: app.ID,
			To:            domain.StatusCancelled,
			ChangedBy:     "system",
			ChangeReason:  "stale application auto-cancel",
		}); err != nil {
			logger.Warn("Failed to cancel stale application",
				zap.String("application_id", app.ID.String()),
				zap.Error(err),
			)
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		logger.Info("Stale pending applications cancelled",
			zap.Int("cancelled", cancelled),
			zap.String("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}

// applicationIDFromArgs extracts the application id recorded in a failed
// job's args.
func applicationIDFromArgs(args map[string]interface{}) (uuid.UUID, bool) {
	raw, found := args["application_id"].(string)
	if !found {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}
