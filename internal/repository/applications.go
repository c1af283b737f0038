package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/crypto"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
)

// ApplicationRepository persists applications. PII columns hold ciphertext;
// encryption happens on the way in, decryption only through DecryptPII at
// the API response boundary.
type ApplicationRepository struct {
	pool   *pgxpool.Pool
	cipher *crypto.Cipher
}

const applicationColumns = `
	id, country, full_name, identity_document,
	requested_amount::text, monthly_income::text, currency, idempotency_key,
	status, country_specific_data, banking_data, validation_errors,
	risk_score::text, created_at, updated_at, deleted_at`

// CreateParams carries the plaintext creation request.
type CreateParams struct {
	Country             domain.CountryCode
	FullName            string
	IdentityDocument    string
	RequestedAmount     decimal.Decimal
	MonthlyIncome       decimal.Decimal
	Currency            string
	IdempotencyKey      *string
	CountrySpecificData map[string]interface{}
}

// Create inserts a new PENDING application. The enqueue trigger writes the
// pending_jobs row in the same transaction; this method never enqueues.
// Unique violations surface as ErrIdempotencyConflict / ErrDuplicateActive.
func (r *ApplicationRepository) Create(ctx context.Context, params CreateParams) (*domain.Application, error) {
	encName, err := r.cipher.Encrypt(params.FullName)
	if err != nil {
		return nil, fmt.Errorf("encrypt full name: %w", err)
	}
	encDoc, err := r.cipher.Encrypt(params.IdentityDocument)
	if err != nil {
		return nil, fmt.Errorf("encrypt identity document: %w", err)
	}

	countryData := params.CountrySpecificData
	if countryData == nil {
		countryData = map[string]interface{}{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO applications (
			country, full_name, identity_document,
			requested_amount, monthly_income, currency,
			idempotency_key, country_specific_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+applicationColumns,
		params.Country, encName, encDoc,
		params.RequestedAmount.StringFixed(2), params.MonthlyIncome.StringFixed(2),
		params.Currency, params.IdempotencyKey, countryData,
	)

	app, err := scanApplication(row)
	if err != nil {
		return nil, classifyDBError(mapConstraintError(err), "insert application")
	}
	return app, nil
}

// GetByID fetches one application; soft-deleted rows are reported as
// ErrNotFound.
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE id = $1 AND deleted_at IS NULL`, id)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch application")
	}
	return app, nil
}

// GetByIdempotencyKey resolves an idempotent replay to the prior record.
func (r *ApplicationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Application, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE idempotency_key = $1`, key)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyDBError(err, "fetch application by idempotency key")
	}
	return app, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Country *domain.CountryCode
	Status  *domain.ApplicationStatus
	Limit   int
	Offset  int
}

// List returns applications ordered by created_at descending.
func (r *ApplicationRepository) List(ctx context.Context, filter ListFilter) ([]*domain.Application, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE deleted_at IS NULL
		  AND ($1::country_code IS NULL OR country = $1)
		  AND ($2::application_status IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		filter.Country, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, classifyDBError(err, "list applications")
	}
	defer rows.Close()

	var apps []*domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// TransitionParams describes one audited status change.
type TransitionParams struct {
	ApplicationID uuid.UUID
	To            domain.ApplicationStatus
	ChangedBy     string
	ChangeReason  string

	// Optional result fields persisted atomically with the transition.
	RiskScore        *decimal.Decimal
	BankingData      map[string]interface{}
	ValidationErrors []string
	RiskLevel        *domain.RiskLevel
}

// Transition performs a guarded status change atomically with the audit
// attribution. The row is locked, the transition table consulted, the
// session settings set for the audit trigger, and the update committed in
// one transaction. Illegal transitions fail with the permanent
// StateTransitionError kind.
func (r *ApplicationRepository) Transition(ctx context.Context, params TransitionParams) (*domain.Application, error) {
	var app *domain.Application

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+applicationColumns+`
			FROM applications
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE`, params.ApplicationID)

		current, err := scanApplication(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if err := domain.ValidateTransition(current.Status, params.To); err != nil {
			return err
		}

		changedBy := params.ChangedBy
		if changedBy == "" {
			changedBy = "system"
		}
		if _, err := tx.Exec(ctx,
			`SELECT set_config('app.changed_by', $1, true), set_config('app.change_reason', $2, true)`,
			changedBy, params.ChangeReason,
		); err != nil {
			return fmt.Errorf("set audit attribution: %w", err)
		}

		var riskScore *string
		if params.RiskScore != nil {
			if err := domain.ValidateRiskScore(*params.RiskScore); err != nil {
				return apperrors.Permanent(apperrors.KindValidation, "%v", err)
			}
			s := params.RiskScore.StringFixed(2)
			riskScore = &s
		}

		countryData := current.CountrySpecificData
		if params.RiskLevel != nil {
			if countryData == nil {
				countryData = map[string]interface{}{}
			}
			countryData["risk_level"] = string(*params.RiskLevel)
		}

		bankingData := params.BankingData
		if bankingData == nil {
			bankingData = current.BankingData
		}
		validationErrors := params.ValidationErrors
		if validationErrors == nil {
			validationErrors = current.ValidationErrors
		}
		if validationErrors == nil {
			validationErrors = []string{}
		}

		row = tx.QueryRow(ctx, `
			UPDATE applications
			SET status = $2,
			    risk_score = COALESCE($3::numeric, risk_score),
			    banking_data = $4,
			    validation_errors = $5,
			    country_specific_data = $6
			WHERE id = $1
			RETURNING `+applicationColumns,
			params.ApplicationID, params.To, riskScore,
			jsonbOrEmptyObject(bankingData), validationErrors, jsonbOrEmptyObject(countryData),
		)

		app, err = scanApplication(row)
		return err
	})
	if err != nil {
		return nil, classifyDBError(err, "transition application")
	}
	return app, nil
}

// SoftDelete marks the row deleted without removing it.
func (r *ApplicationRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE applications SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return classifyDBError(err, "soft delete application")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStalePending returns PENDING applications created before cutoff.
func (r *ApplicationRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+applicationColumns+`
		FROM applications
		WHERE status = 'PENDING' AND deleted_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, classifyDBError(err, "list stale pending applications")
	}
	defer rows.Close()

	var apps []*domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// DecryptPII opens the ciphertext columns for the API response helper.
func (r *ApplicationRepository) DecryptPII(app *domain.Application) (fullName, identityDocument string, err error) {
	fullName, err = r.cipher.Decrypt(app.FullName)
	if err != nil {
		return "", "", fmt.Errorf("decrypt full name: %w", err)
	}
	identityDocument, err = r.cipher.Decrypt(app.IdentityDocument)
	if err != nil {
		return "", "", fmt.Errorf("decrypt identity document: %w", err)
	}
	return fullName, identityDocument, nil
}

func jsonbOrEmptyObject(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// scanApplication reads one applications row. Monetary columns travel as
// text so fixed-point values survive the round trip exactly.
func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		app              domain.Application
		requestedAmount  string
		monthlyIncome    string
		riskScore        *string
		countryData      map[string]interface{}
		bankingData      map[string]interface{}
		validationErrors []string
	)

	err := row.Scan(
		&app.ID, &app.Country, &app.FullName, &app.IdentityDocument,
		&requestedAmount, &monthlyIncome, &app.Currency, &app.IdempotencyKey,
		&app.Status, &countryData, &bankingData, &validationErrors,
		&riskScore, &app.CreatedAt, &app.UpdatedAt, &app.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	app.RequestedAmount, err = decimal.NewFromString(requestedAmount)
	if err != nil {
		return nil, fmt.Errorf("parse requested_amount: %w", err)
	}
	app.MonthlyIncome, err = decimal.NewFromString(monthlyIncome)
	if err != nil {
		return nil, fmt.Errorf("parse monthly_income: %w", err)
	}
	if riskScore != nil {
		score, err := decimal.NewFromString(*riskScore)
		if err != nil {
			return nil, fmt.Errorf("parse risk_score: %w", err)
		}
		app.RiskScore = &score
	}

	app.CountrySpecificData = countryData
	app.BankingData = bankingData
	app.ValidationErrors = validationErrors
	return &app, nil
}
