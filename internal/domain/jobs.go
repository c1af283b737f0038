package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskProcessCreditApplication is the task carried by pending_jobs rows
// written by the enqueue trigger.
const TaskProcessCreditApplication = "process_credit_application"

// PendingJobStatus is the pending_jobs row status.
type PendingJobStatus string

const (
	PendingJobPending    PendingJobStatus = "pending"    // created by trigger, waiting for the bridge
	PendingJobEnqueued   PendingJobStatus = "enqueued"   // pushed to the work queue
	PendingJobProcessing PendingJobStatus = "processing" // claimed by a worker
	PendingJobCompleted  PendingJobStatus = "completed"  // terminal
	PendingJobFailed     PendingJobStatus = "failed"     // terminal
)

// PendingJob is the visible job-table row that makes the
// database-trigger → work-queue handoff crash-safe and observable.
type PendingJob struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	TaskName      string
	JobArgs       map[string]interface{}
	JobKwargs     map[string]interface{}
	Status        PendingJobStatus
	QueueJobID    *string
	CreatedAt     time.Time
	EnqueuedAt    *time.Time
	ProcessedAt   *time.Time
	UpdatedAt     time.Time
	ErrorMessage  *string
	RetryCount    int
}

// WebhookEventStatus is the webhook_events row status.
type WebhookEventStatus string

const (
	WebhookEventProcessing WebhookEventStatus = "processing"
	WebhookEventProcessed  WebhookEventStatus = "processed"
	WebhookEventFailed     WebhookEventStatus = "failed"
)

// WebhookEvent records one provider confirmation for idempotency and audit.
// IdempotencyKey is the provider's reference and is unique.
type WebhookEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	ApplicationID  uuid.UUID
	Payload        map[string]interface{}
	Status         WebhookEventStatus
	ErrorMessage   *string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookEventRetention is how long webhook_events rows are kept.
const WebhookEventRetention = 30 * 24 * time.Hour

// FailedJobStatus is the failed_jobs (dead letter) row status.
type FailedJobStatus string

const (
	FailedJobPending     FailedJobStatus = "pending"
	FailedJobReviewed    FailedJobStatus = "reviewed"
	FailedJobReprocessed FailedJobStatus = "reprocessed"
	FailedJobIgnored     FailedJobStatus = "ignored"
	FailedJobRetried     FailedJobStatus = "retried"
)

// FailedJob is a dead-letter record written after a permanent failure or
// exhausted retries.
type FailedJob struct {
	ID             uuid.UUID
	JobID          string
	TaskName       string
	JobArgs        map[string]interface{}
	JobKwargs      map[string]interface{}
	ErrorType      string
	ErrorMessage   string
	ErrorTraceback *string
	RetryCount     int
	MaxRetries     int
	Status         FailedJobStatus
	IsRetryable    bool
	PendingJobID   *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
