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

// WebhookEventRepository records provider confirmations for idempotency.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

const webhookEventColumns = `
	id, idempotency_key, application_id, payload, status,
	error_message, processed_at, created_at, updated_at`

// Insert records a new event in processing state. A duplicate idempotency
// key surfaces as ErrDuplicateWebhook so the handler can answer 200 without
// reprocessing.
func (r *WebhookEventRepository) Insert(ctx context.Context, idempotencyKey string, applicationID uuid.UUID, payload map[string]interface{}) (*domain.WebhookEvent, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (idempotency_key, application_id, payload)
		VALUES ($1, $2, $3)
		RETURNING `+webhookEventColumns,
		idempotencyKey, applicationID, payload)

	event, err := scanWebhookEvent(row)
	if err != nil {
		return nil, classifyDBError(mapConstraintError(err), "insert webhook event")
	}
	return event, nil
}

// GetByIdempotencyKey fetches the prior event for a replayed reference.
func (r *WebhookEventRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.WebhookEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events WHERE idempotency_key = $1`, idempotencyKey)

	event, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch webhook event")
	}
	return event, nil
}

// MarkProcessed stamps the event processed.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'processed', processed_at = now(), error_message = NULL
		WHERE id = $1`, id)
	return classifyDBError(err, "mark webhook event processed")
}

// MarkFailed stamps the event failed with a reason. A failed event can be
// retried by a replay of the same provider reference.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'failed', error_message = $2
		WHERE id = $1`, id, reason)
	return classifyDBError(err, "mark webhook event failed")
}

// MarkReprocessing resets a failed event for a retry attempt.
func (r *WebhookEventRepository) MarkReprocessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'processing', error_message = NULL
		WHERE id = $1 AND status = 'failed'`, id)
	return classifyDBError(err, "reset webhook event for reprocessing")
}

// DeleteOlderThan removes events past the retention window. Returns the
// number of rows deleted.
func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM webhook_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, classifyDBError(err, "delete expired webhook events")
	}
	return tag.RowsAffected(), nil
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	err := row.Scan(
		&event.ID, &event.IdempotencyKey, &event.ApplicationID, &event.Payload,
		&event.Status, &event.ErrorMessage, &event.ProcessedAt,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
