package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/api/middleware"
	"credit-core.io/creditcore/internal/domain"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/repository"
)

// CreateApplicationRequest is the POST /applications body.
type CreateApplicationRequest struct {
	Country             string                 `json:"country" binding:"required"`
	FullName            string                 `json:"full_name" binding:"required"`
	IdentityDocument    string                 `json:"identity_document" binding:"required"`
	RequestedAmount     string                 `json:"requested_amount" binding:"required"`
	MonthlyIncome       string                 `json:"monthly_income" binding:"required"`
	Currency            string                 `json:"currency" binding:"required"`
	IdempotencyKey      *string                `json:"idempotency_key,omitempty"`
	CountrySpecificData map[string]interface{} `json:"country_specific_data,omitempty"`
}

// ApplicationResponse is the API shape of an application. PII is decrypted
// only here, at the response boundary.
type ApplicationResponse struct {
	ID                  string                 `json:"id"`
	Country             string                 `json:"country"`
	FullName            string                 `json:"full_name"`
	IdentityDocument    string                 `json:"identity_document"`
	RequestedAmount     string                 `json:"requested_amount"`
	MonthlyIncome       string                 `json:"monthly_income"`
	Currency            string                 `json:"currency"`
	Status              string                 `json:"status"`
	RiskScore           *string                `json:"risk_score"`
	CountrySpecificData map[string]interface{} `json:"country_specific_data,omitempty"`
	BankingData         map[string]interface{} `json:"banking_data,omitempty"`
	ValidationErrors    []string               `json:"validation_errors,omitempty"`
	CreatedAt           string                 `json:"created_at"`
	UpdatedAt           string                 `json:"updated_at"`
}

// CreateApplication handles POST /applications. The insert is the only
// synchronous obligation; the enqueue trigger and the async pipeline do the
// rest.
func (s *Server) CreateApplication(c *gin.Context) {
	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	params, appErr := s.validateCreateRequest(&req)
	if appErr != nil {
		_ = c.Error(appErr)
		return
	}

	ctx := c.Request.Context()

	// Idempotent replay resolves to the prior record without a new insert.
	if params.IdempotencyKey != nil {
		existing, err := s.apps.GetByIdempotencyKey(ctx, *params.IdempotencyKey)
		if err == nil {
			s.respondApplication(c, http.StatusCreated, existing)
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			_ = c.Error(err)
			return
		}
	}

	app, err := s.apps.Create(ctx, *params)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIdempotencyConflict):
			// Lost the insert race to a concurrent identical request.
			if params.IdempotencyKey != nil {
				if existing, lookupErr := s.apps.GetByIdempotencyKey(ctx, *params.IdempotencyKey); lookupErr == nil {
					s.respondApplication(c, http.StatusCreated, existing)
					return
				}
			}
			_ = c.Error(apperrors.Conflict(apperrors.CodeIdempotencyConflict, "idempotency key already used"))
		case errors.Is(err, repository.ErrDuplicateActive):
			_ = c.Error(apperrors.Conflict(apperrors.CodeDuplicateActive,
				"an active application already exists for this document"))
		default:
			_ = c.Error(err)
		}
		return
	}

	s.respondApplication(c, http.StatusCreated, app)
}

// validateCreateRequest fails fast on input problems so nothing invalid is
// ever enqueued.
func (s *Server) validateCreateRequest(req *CreateApplicationRequest) (*repository.CreateParams, *apperrors.AppError) {
	country := domain.CountryCode(strings.ToUpper(strings.TrimSpace(req.Country)))
	if !domain.IsSupportedCountry(country) {
		return nil, apperrors.BadRequest(apperrors.CodeCountryUnsupported,
			"country "+req.Country+" is not supported")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if expected := domain.CountryCurrency[country]; currency != expected {
		return nil, apperrors.BadRequest(apperrors.CodeCurrencyMismatch,
			"currency "+currency+" does not match the canonical currency "+expected+" for "+string(country))
	}

	fullName := strings.TrimSpace(req.FullName)
	if len(strings.Fields(fullName)) < 2 {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed,
			"full name should include at least first and last name")
	}

	requestedAmount, err := decimal.NewFromString(strings.TrimSpace(req.RequestedAmount))
	if err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed, "requested_amount is not a valid decimal")
	}
	if err := domain.ValidateAmount("requested_amount", requestedAmount); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeAmountOutOfRange, err.Error())
	}

	monthlyIncome, err := decimal.NewFromString(strings.TrimSpace(req.MonthlyIncome))
	if err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed, "monthly_income is not a valid decimal")
	}
	if err := domain.ValidateAmount("monthly_income", monthlyIncome); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeAmountOutOfRange, err.Error())
	}

	document := strings.TrimSpace(req.IdentityDocument)
	countryStrategy, stratErr := s.strategies.ForCountry(country)
	if stratErr != nil {
		return nil, apperrors.BadRequest(apperrors.CodeCountryUnsupported,
			"country "+string(country)+" is not supported")
	}
	if validation := countryStrategy.ValidateDocument(document); !validation.Valid {
		return nil, apperrors.BadRequest(apperrors.CodeDocumentInvalid,
			"identity document validation failed").
			WithParams(map[string]interface{}{"errors": validation.Errors})
	}

	var idempotencyKey *string
	if req.IdempotencyKey != nil {
		if key := strings.TrimSpace(*req.IdempotencyKey); key != "" {
			idempotencyKey = &key
		}
	}

	return &repository.CreateParams{
		Country:             country,
		FullName:            fullName,
		IdentityDocument:    document,
		RequestedAmount:     requestedAmount,
		MonthlyIncome:       monthlyIncome,
		Currency:            currency,
		IdempotencyKey:      idempotencyKey,
		CountrySpecificData: req.CountrySpecificData,
	}, nil
}

// GetApplication handles GET /applications/:id.
func (s *Server) GetApplication(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	app, err := s.apps.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondLookupError(c, err)
		return
	}
	s.respondApplication(c, http.StatusOK, app)
}

// ListApplications handles GET /applications.
func (s *Server) ListApplications(c *gin.Context) {
	filter := repository.ListFilter{Limit: intQuery(c, "limit", 10), Offset: intQuery(c, "offset", 0)}

	if raw := c.Query("country"); raw != "" {
		country := domain.CountryCode(strings.ToUpper(raw))
		if !domain.IsSupportedCountry(country) {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeCountryUnsupported, "unknown country filter"))
			return
		}
		filter.Country = &country
	}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, err.Error()))
			return
		}
		filter.Status = &status
	}

	apps, err := s.apps.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		resp, err := s.toResponse(app)
		if err != nil {
			_ = c.Error(err)
			return
		}
		items = append(items, resp)
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// CancelApplication handles POST /applications/:id/cancel. Only PENDING
// applications can be cancelled; the state machine enforces it.
func (s *Server) CancelApplication(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	current, err := s.apps.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondLookupError(c, err)
		return
	}
	// The state machine treats CANCELLED → CANCELLED as a no-op, so a
	// repeated cancel is refused here.
	if current.Status != domain.StatusPending {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeInvalidTransition,
			"only PENDING applications can be cancelled (status "+string(current.Status)+")"))
		return
	}

	changedBy := middleware.GetUsername(c.Request.Context())
	if changedBy == "" {
		changedBy = "api"
	}

	app, err := s.apps.Transition(c.Request.Context(), repository.TransitionParams{
		ApplicationID: id,
		To:            domain.StatusCancelled,
		ChangedBy:     changedBy,
		ChangeReason:  "cancelled via API",
	})
	if err != nil {
		s.respondTransitionError(c, err)
		return
	}

	s.publisher.PublishUpdate(c.Request.Context(), app)
	s.respondApplication(c, http.StatusOK, app)
}

// UpdateApplicationStatus handles PATCH /applications/:id/status, the
// bounded admin override. Terminal source states are rejected by the state
// machine.
func (s *Server) UpdateApplicationStatus(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeValidationFailed, err.Error()))
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, err.Error()))
		return
	}

	changedBy := middleware.GetUsername(c.Request.Context())
	if changedBy == "" {
		changedBy = "api"
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual status change"
	}

	app, err := s.apps.Transition(c.Request.Context(), repository.TransitionParams{
		ApplicationID: id,
		To:            status,
		ChangedBy:     changedBy,
		ChangeReason:  reason,
	})
	if err != nil {
		s.respondTransitionError(c, err)
		return
	}

	s.publisher.PublishUpdate(c.Request.Context(), app)
	s.respondApplication(c, http.StatusOK, app)
}

// DeleteApplication handles DELETE /applications/:id (soft delete).
func (s *Server) DeleteApplication(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	if err := s.apps.SoftDelete(c.Request.Context(), id); err != nil {
		s.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "application deleted"})
}

// ListAuditLogs handles GET /applications/:id/audit-logs.
func (s *Server) ListAuditLogs(c *gin.Context) {
	id, ok := s.parseID(c)
	if !ok {
		return
	}

	entries, err := s.audits.ListByApplication(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		item := gin.H{
			"id":         entry.ID.String(),
			"new_status": string(entry.NewStatus),
			"changed_by": entry.ChangedBy,
			"created_at": entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if entry.OldStatus != nil {
			item["old_status"] = string(*entry.OldStatus)
		}
		if entry.ChangeReason != nil {
			item["change_reason"] = *entry.ChangeReason
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// --- helpers ---

func (s *Server) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid application id"))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		_ = c.Error(apperrors.NotFound(apperrors.CodeApplicationNotFound, "application not found"))
		return
	}
	_ = c.Error(err)
}

func (s *Server) respondTransitionError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		_ = c.Error(apperrors.NotFound(apperrors.CodeApplicationNotFound, "application not found"))
		return
	}
	proc := apperrors.ClassifyProcessing(err)
	if proc.Kind == apperrors.KindStateTransition {
		_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeInvalidTransition, proc.Message))
		return
	}
	_ = c.Error(err)
}

func (s *Server) respondApplication(c *gin.Context, status int, app *domain.Application) {
	resp, err := s.toResponse(app)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, resp)
}

// toResponse decrypts PII and shapes the API response.
func (s *Server) toResponse(app *domain.Application) (ApplicationResponse, error) {
	fullName, document, err := s.apps.DecryptPII(app)
	if err != nil {
		return ApplicationResponse{}, err
	}

	resp := ApplicationResponse{
		ID:                  app.ID.String(),
		Country:             string(app.Country),
		FullName:            fullName,
		IdentityDocument:    document,
		RequestedAmount:     app.RequestedAmount.StringFixed(2),
		MonthlyIncome:       app.MonthlyIncome.StringFixed(2),
		Currency:            app.Currency,
		Status:              string(app.Status),
		CountrySpecificData: app.CountrySpecificData,
		BankingData:         app.BankingData,
		ValidationErrors:    app.ValidationErrors,
		CreatedAt:           app.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:           app.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if app.RiskScore != nil {
		score := app.RiskScore.StringFixed(2)
		resp.RiskScore = &score
	}
	return resp, nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fallback
		}
		value = value*10 + int(r-'0')
		if value > 1_000_000 {
			return fallback
		}
	}
	return value
}
