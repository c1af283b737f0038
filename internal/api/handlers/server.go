// Package handlers implements the HTTP surface consumed by the core.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/worker"
	"credit-core.io/creditcore/internal/repository"
	"credit-core.io/creditcore/internal/strategy"
	"credit-core.io/creditcore/internal/ws"
)

// ApplicationStore is the persistence surface the handlers consume.
// Satisfied by *repository.ApplicationRepository.
type ApplicationStore interface {
	Create(ctx context.Context, params repository.CreateParams) (*domain.Application, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Application, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*domain.Application, error)
	Transition(ctx context.Context, params repository.TransitionParams) (*domain.Application, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	DecryptPII(app *domain.Application) (fullName, identityDocument string, err error)
}

// WebhookEventStore records provider confirmations.
type WebhookEventStore interface {
	Insert(ctx context.Context, idempotencyKey string, applicationID uuid.UUID, payload map[string]interface{}) (*domain.WebhookEvent, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkReprocessing(ctx context.Context, id uuid.UUID) error
}

// AuditLogStore reads the audit trail.
type AuditLogStore interface {
	ListByApplication(ctx context.Context, applicationID uuid.UUID) ([]*domain.AuditLog, error)
}

// FailedJobStore exposes the dead letter queue to the admin surface.
type FailedJobStore interface {
	List(ctx context.Context, limit, offset int) ([]*domain.FailedJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FailedJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FailedJobStatus) error
}

// PendingJobStore re-enqueues dead letters through the visible job table.
type PendingJobStore interface {
	Insert(ctx context.Context, applicationID uuid.UUID, taskName string, jobArgs map[string]interface{}) (*domain.PendingJob, error)
}

// UpdatePublisher broadcasts application updates, best-effort.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, app *domain.Application)
}

// Server holds the handler dependencies.
type Server struct {
	apps        ApplicationStore
	webhooks    WebhookEventStore
	audits      AuditLogStore
	failedJobs  FailedJobStore
	pendingJobs PendingJobStore
	strategies  *strategy.Registry
	publisher   UpdatePublisher
	hub         *ws.Hub
	pools       *worker.Pools

	webhookSecret   []byte
	webhookMaxBytes int64
	wsOptions       ws.Options
}

// Config bundles the server construction parameters.
type Config struct {
	Apps        ApplicationStore
	Webhooks    WebhookEventStore
	Audits      AuditLogStore
	FailedJobs  FailedJobStore
	PendingJobs PendingJobStore
	Strategies  *strategy.Registry
	Publisher   UpdatePublisher
	Hub         *ws.Hub
	Pools       *worker.Pools

	WebhookSecret   []byte
	WebhookMaxBytes int64
	WSOptions       ws.Options
}

// NewServer creates the handler set.
func NewServer(cfg Config) *Server {
	maxBytes := cfg.WebhookMaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20 // 1 MiB
	}
	return &Server{
		apps:            cfg.Apps,
		webhooks:        cfg.Webhooks,
		audits:          cfg.Audits,
		failedJobs:      cfg.FailedJobs,
		pendingJobs:     cfg.PendingJobs,
		strategies:      cfg.Strategies,
		publisher:       cfg.Publisher,
		hub:             cfg.Hub,
		pools:           cfg.Pools,
		webhookSecret:   cfg.WebhookSecret,
		webhookMaxBytes: maxBytes,
		wsOptions:       cfg.WSOptions,
	}
}

// Health reports liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
