package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"credit-core.io/creditcore/internal/domain"
)

// AuditLogRepository reads the append-only audit trail. Rows are written by
// the audit_status_change trigger; nothing inserts here directly.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// ListByApplication returns the audit trail for one application in change
// order.
func (r *AuditLogRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, application_id, old_status, new_status, changed_by,
		       change_reason, metadata, created_at
		FROM audit_logs
		WHERE application_id = $1
		ORDER BY created_at ASC`, applicationID)
	if err != nil {
		return nil, classifyDBError(err, "list audit logs")
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.ApplicationID, &entry.OldStatus, &entry.NewStatus,
			&entry.ChangedBy, &entry.ChangeReason, &entry.Metadata, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
