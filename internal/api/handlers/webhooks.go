package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/repository"
)

// WebhookSignatureHeader carries the lowercase hex HMAC-SHA256 of the raw
// body.
const WebhookSignatureHeader = "X-Webhook-Signature"

// BankConfirmationPayload is the provider confirmation body.
type BankConfirmationPayload struct {
	ApplicationID      string           `json:"application_id"`
	ProviderReference  string           `json:"provider_reference"`
	Provider           string           `json:"provider,omitempty"`
	Outcome            string           `json:"outcome"`
	CreditScore        *int             `json:"credit_score,omitempty"`
	TotalDebt          *decimal.Decimal `json:"total_debt,omitempty"`
	MonthlyObligations *decimal.Decimal `json:"monthly_obligations,omitempty"`
	HasDefaults        bool             `json:"has_defaults,omitempty"`
	DocumentVerified   *bool            `json:"document_verified,omitempty"`
	VerifiedAt         *time.Time       `json:"verified_at,omitempty"`
}

// BankConfirmationWebhook handles POST /webhooks/bank-confirmation.
//
// Security: payload capped at 1 MiB, signature verified in constant time.
// Idempotency: provider_reference is the unique event key; replays return
// 200 without a second transition.
func (s *Server) BankConfirmationWebhook(c *gin.Context) {
	signature := c.GetHeader(WebhookSignatureHeader)
	if signature == "" {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeWebhookSignature,
			"missing webhook signature"))
		return
	}

	// Content-Length is advisory; the capped reader is the enforcement.
	if c.Request.ContentLength > s.webhookMaxBytes {
		_ = c.Error(apperrors.PayloadTooLarge(apperrors.CodeWebhookOversize,
			"webhook payload exceeds maximum size"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.webhookMaxBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			_ = c.Error(apperrors.PayloadTooLarge(apperrors.CodeWebhookOversize,
				"webhook payload exceeds maximum size"))
			return
		}
		_ = c.Error(apperrors.BadRequest(apperrors.CodeWebhookPayload, "failed to read body"))
		return
	}

	if !s.verifySignature(body, signature) {
		logger.Warn("Invalid webhook signature received")
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeWebhookSignature,
			"invalid webhook signature"))
		return
	}

	var payload BankConfirmationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeWebhookPayload,
			"invalid webhook payload: "+err.Error()))
		return
	}
	if payload.ProviderReference == "" {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeWebhookPayload,
			"missing provider_reference (required for idempotency)"))
		return
	}
	applicationID, err := uuid.Parse(payload.ApplicationID)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeWebhookPayload,
			"invalid application_id"))
		return
	}
	targetStatus, err := domain.ParseStatus(payload.Outcome)
	if err != nil {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeWebhookPayload,
			"invalid outcome: "+payload.Outcome))
		return
	}

	ctx := c.Request.Context()

	var rawPayload map[string]interface{}
	_ = json.Unmarshal(body, &rawPayload)

	// Idempotency gate: the unique event row decides who processes.
	event, err := s.webhooks.Insert(ctx, payload.ProviderReference, applicationID, rawPayload)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateWebhook) {
			s.respondDuplicateWebhook(c, payload.ProviderReference)
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			// The event row references applications; an unknown id fails the
			// insert before any processing starts.
			_ = c.Error(apperrors.NotFound(apperrors.CodeApplicationNotFound, "application not found"))
			return
		}
		_ = c.Error(err)
		return
	}

	s.processWebhookEvent(c, event, payload, applicationID, targetStatus)
}

// respondDuplicateWebhook answers a replayed provider reference.
func (s *Server) respondDuplicateWebhook(c *gin.Context, providerReference string) {
	ctx := c.Request.Context()
	existing, err := s.webhooks.GetByIdempotencyKey(ctx, providerReference)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "webhook already received"})
		return
	}

	switch existing.Status {
	case domain.WebhookEventFailed:
		// Retry of a previously failed event re-runs the processing.
		if err := s.webhooks.MarkReprocessing(ctx, existing.ID); err != nil {
			_ = c.Error(err)
			return
		}
		payload, applicationID, targetStatus, parseErr := s.reparseEvent(existing)
		if parseErr != nil {
			_ = c.Error(parseErr)
			return
		}
		s.processWebhookEvent(c, existing, payload, applicationID, targetStatus)
	default:
		logger.Info("Webhook already processed, idempotent response",
			zap.String("provider_reference", providerReference),
		)
		c.JSON(http.StatusOK, gin.H{
			"message":           "webhook already processed",
			"already_processed": true,
		})
	}
}

// processWebhookEvent advances the application per the confirmed outcome.
func (s *Server) processWebhookEvent(
	c *gin.Context,
	event *domain.WebhookEvent,
	payload BankConfirmationPayload,
	applicationID uuid.UUID,
	targetStatus domain.ApplicationStatus,
) {
	ctx := c.Request.Context()

	providerName := payload.Provider
	if providerName == "" {
		providerName = "bank"
	}

	app, err := s.apps.Transition(ctx, repository.TransitionParams{
		ApplicationID: applicationID,
		To:            targetStatus,
		ChangedBy:     "webhook:" + providerName,
		ChangeReason:  "provider confirmation " + payload.ProviderReference,
		BankingData:   s.mergedBankingData(ctx, applicationID, payload),
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.webhooks.MarkFailed(ctx, event.ID, "application not found")
			_ = c.Error(apperrors.NotFound(apperrors.CodeApplicationNotFound, "application not found"))
			return
		}
		proc := apperrors.ClassifyProcessing(err)
		if proc.Kind == apperrors.KindStateTransition {
			_ = s.webhooks.MarkFailed(ctx, event.ID, "invalid transition")
			_ = c.Error(apperrors.UnprocessableEntity(apperrors.CodeWebhookTransition, proc.Message))
			return
		}
		_ = s.webhooks.MarkFailed(ctx, event.ID, proc.Message)
		_ = c.Error(err)
		return
	}

	if err := s.webhooks.MarkProcessed(ctx, event.ID); err != nil {
		logger.Error("Failed to mark webhook event processed",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}

	s.publisher.PublishUpdate(ctx, app)

	logger.Info("Bank confirmation webhook processed",
		zap.String("application_id", applicationID.String()),
		zap.String("provider_reference", payload.ProviderReference),
		zap.String("status", string(app.Status)),
	)
	c.JSON(http.StatusOK, gin.H{
		"message":        "webhook processed",
		"application_id": applicationID.String(),
		"status":         string(app.Status),
	})
}

// mergedBankingData merges the confirmation fields over the stored banking
// data. Decimals travel as strings to keep fixed-point exactness.
func (s *Server) mergedBankingData(ctx context.Context, applicationID uuid.UUID, payload BankConfirmationPayload) map[string]interface{} {
	merged := map[string]interface{}{}
	if app, err := s.apps.GetByID(ctx, applicationID); err == nil && app.BankingData != nil {
		for k, v := range app.BankingData {
			merged[k] = v
		}
	}

	merged["provider_reference"] = payload.ProviderReference
	merged["webhook_received"] = true
	if payload.CreditScore != nil {
		merged["credit_score"] = *payload.CreditScore
	}
	if payload.TotalDebt != nil {
		merged["total_debt"] = payload.TotalDebt.StringFixed(2)
	}
	if payload.MonthlyObligations != nil {
		merged["monthly_obligations"] = payload.MonthlyObligations.StringFixed(2)
	}
	if payload.DocumentVerified != nil {
		merged["document_verified"] = *payload.DocumentVerified
	}
	merged["has_defaults"] = payload.HasDefaults
	if payload.VerifiedAt != nil {
		merged["verified_at"] = payload.VerifiedAt.UTC().Format(time.RFC3339)
	}
	return merged
}

// reparseEvent rebuilds the typed payload from a stored event for retries.
func (s *Server) reparseEvent(event *domain.WebhookEvent) (BankConfirmationPayload, uuid.UUID, domain.ApplicationStatus, error) {
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return BankConfirmationPayload{}, uuid.Nil, "", err
	}
	var payload BankConfirmationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return BankConfirmationPayload{}, uuid.Nil, "", err
	}
	applicationID, err := uuid.Parse(payload.ApplicationID)
	if err != nil {
		return BankConfirmationPayload{}, uuid.Nil, "", err
	}
	targetStatus, err := domain.ParseStatus(payload.Outcome)
	if err != nil {
		return BankConfirmationPayload{}, uuid.Nil, "", err
	}
	return payload, applicationID, targetStatus, nil
}

// verifySignature compares the expected HMAC in constant time.
func (s *Server) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
