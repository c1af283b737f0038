// Package repository provides pgx-backed persistence for Credit Core.
//
// The repositories exclusively own row writes; all other components mutate
// through them. Queries return explicit DTOs from internal/domain — there is
// no session state and no lazy loading.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"credit-core.io/creditcore/internal/pkg/crypto"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
)

// Typed conflict errors surfaced from unique constraint violations, so the
// HTTP layer can distinguish an idempotency hit from a duplicate active
// application and from a generic data error.
var (
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrDuplicateActive     = errors.New("active application already exists for this document")
	ErrDuplicateWebhook    = errors.New("webhook event already recorded")
	ErrNotFound            = errors.New("row not found")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapConstraintError translates a pg constraint violation into its typed
// error. Foreign key violations mean the referenced application is gone.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == foreignKeyViolation {
		return ErrNotFound
	}
	if pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case "unique_idempotency_key":
		return ErrIdempotencyConflict
	case "unique_document_per_country":
		return ErrDuplicateActive
	case "webhook_events_idempotency_key_key":
		return ErrDuplicateWebhook
	}
	return err
}

// isConnectivityError reports whether err looks like the database being
// unreachable rather than a data problem.
func isConnectivityError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 — connection exceptions; class 57 — operator intervention.
		return len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57")
	}
	return false
}

// classifyDBError wraps database errors into the transient
// DatabaseUnavailable kind when connectivity is the cause.
func classifyDBError(err error, context string) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return apperrors.Transient(apperrors.KindDatabaseUnavailable, err, "%s", context)
	}
	return err
}

// Repositories bundles all table repositories over one shared pool.
type Repositories struct {
	Applications  *ApplicationRepository
	PendingJobs   *PendingJobRepository
	WebhookEvents *WebhookEventRepository
	FailedJobs    *FailedJobRepository
	AuditLogs     *AuditLogRepository
}

// New builds the repository set.
func New(pool *pgxpool.Pool, cipher *crypto.Cipher) *Repositories {
	return &Repositories{
		Applications:  &ApplicationRepository{pool: pool, cipher: cipher},
		PendingJobs:   &PendingJobRepository{pool: pool},
		WebhookEvents: &WebhookEventRepository{pool: pool},
		FailedJobs:    &FailedJobRepository{pool: pool},
		AuditLogs:     &AuditLogRepository{pool: pool},
	}
}
