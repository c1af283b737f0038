package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/crypto"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/repository"
)

// fakeAppStore is an in-memory ApplicationStore mirroring the repository's
// constraint semantics closely enough for handler tests.
type fakeAppStore struct {
	mu     sync.Mutex
	cipher *crypto.Cipher
	apps   map[uuid.UUID]*domain.Application
}

func newFakeAppStore() *fakeAppStore {
	cipher, _ := crypto.NewCipher([]byte(strings.Repeat("k", 32)))
	return &fakeAppStore{cipher: cipher, apps: make(map[uuid.UUID]*domain.Application)}
}

func (f *fakeAppStore) Create(_ context.Context, params repository.CreateParams) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.apps {
		if params.IdempotencyKey != nil && existing.IdempotencyKey != nil &&
			*existing.IdempotencyKey == *params.IdempotencyKey {
			return nil, repository.ErrIdempotencyConflict
		}
		doc, _ := f.cipher.Decrypt(existing.IdentityDocument)
		if existing.IsActive() && existing.Country == params.Country && doc == params.IdentityDocument {
			return nil, repository.ErrDuplicateActive
		}
	}

	encName, _ := f.cipher.Encrypt(params.FullName)
	encDoc, _ := f.cipher.Encrypt(params.IdentityDocument)
	now := time.Now().UTC()
	app := &domain.Application{
		ID:                  uuid.New(),
		Country:             params.Country,
		FullName:            encName,
		IdentityDocument:    encDoc,
		RequestedAmount:     params.RequestedAmount,
		MonthlyIncome:       params.MonthlyIncome,
		Currency:            params.Currency,
		IdempotencyKey:      params.IdempotencyKey,
		Status:              domain.StatusPending,
		CountrySpecificData: params.CountrySpecificData,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	f.apps[app.ID] = app
	return app, nil
}

func (f *fakeAppStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok || app.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

func (f *fakeAppStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, app := range f.apps {
		if app.IdempotencyKey != nil && *app.IdempotencyKey == key {
			return app, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAppStore) List(_ context.Context, _ repository.ListFilter) ([]*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Application, 0, len(f.apps))
	for _, app := range f.apps {
		if app.DeletedAt == nil {
			out = append(out, app)
		}
	}
	return out, nil
}

func (f *fakeAppStore) Transition(_ context.Context, params repository.TransitionParams) (*domain.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[params.ApplicationID]
	if !ok || app.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	if err := domain.ValidateTransition(app.Status, params.To); err != nil {
		return nil, err
	}
	app.Status = params.To
	if params.RiskScore != nil {
		score := *params.RiskScore
		app.RiskScore = &score
	}
	if params.BankingData != nil {
		app.BankingData = params.BankingData
	}
	if params.ValidationErrors != nil {
		app.ValidationErrors = params.ValidationErrors
	}
	app.UpdatedAt = time.Now().UTC()
	return app, nil
}

func (f *fakeAppStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok || app.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	app.DeletedAt = &now
	return nil
}

func (f *fakeAppStore) DecryptPII(app *domain.Application) (string, string, error) {
	name, err := f.cipher.Decrypt(app.FullName)
	if err != nil {
		return "", "", err
	}
	doc, err := f.cipher.Decrypt(app.IdentityDocument)
	if err != nil {
		return "", "", err
	}
	return name, doc, nil
}

// seed inserts an application in the given status directly.
func (f *fakeAppStore) seed(country domain.CountryCode, document string, status domain.ApplicationStatus) *domain.Application {
	app, _ := f.Create(context.Background(), repository.CreateParams{
		Country:          country,
		FullName:         "Juan García López",
		IdentityDocument: document,
		RequestedAmount:  decimal.RequireFromString("15000.00"),
		MonthlyIncome:    decimal.RequireFromString("3500.00"),
		Currency:         domain.CountryCurrency[country],
	})
	f.mu.Lock()
	app.Status = status
	f.mu.Unlock()
	return app
}

// fakeWebhookStore is an in-memory WebhookEventStore.
type fakeWebhookStore struct {
	mu     sync.Mutex
	events map[string]*domain.WebhookEvent
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{events: make(map[string]*domain.WebhookEvent)}
}

func (f *fakeWebhookStore) Insert(_ context.Context, key string, applicationID uuid.UUID, payload map[string]interface{}) (*domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.events[key]; exists {
		return nil, repository.ErrDuplicateWebhook
	}
	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		IdempotencyKey: key,
		ApplicationID:  applicationID,
		Payload:        payload,
		Status:         domain.WebhookEventProcessing,
		CreatedAt:      time.Now().UTC(),
	}
	f.events[key] = event
	return event, nil
}

func (f *fakeWebhookStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return event, nil
}

func (f *fakeWebhookStore) setStatus(id uuid.UUID, status domain.WebhookEventStatus, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ID == id {
			event.Status = status
			event.ErrorMessage = reason
			if status == domain.WebhookEventProcessed {
				now := time.Now().UTC()
				event.ProcessedAt = &now
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeWebhookStore) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return f.setStatus(id, domain.WebhookEventProcessed, nil)
}

func (f *fakeWebhookStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return f.setStatus(id, domain.WebhookEventFailed, &reason)
}

func (f *fakeWebhookStore) MarkReprocessing(_ context.Context, id uuid.UUID) error {
	return f.setStatus(id, domain.WebhookEventProcessing, nil)
}

// fakeAuditStore returns a canned trail.
type fakeAuditStore struct{}

func (fakeAuditStore) ListByApplication(context.Context, uuid.UUID) ([]*domain.AuditLog, error) {
	return nil, nil
}

// fakeFailedJobStore is an in-memory FailedJobStore.
type fakeFailedJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.FailedJob
}

func newFakeFailedJobStore() *fakeFailedJobStore {
	return &fakeFailedJobStore{jobs: make(map[uuid.UUID]*domain.FailedJob)}
}

func (f *fakeFailedJobStore) List(context.Context, int, int) ([]*domain.FailedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.FailedJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeFailedJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.FailedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

func (f *fakeFailedJobStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.FailedJobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	job.Status = status
	return nil
}

// fakePendingJobStore records inserts.
type fakePendingJobStore struct {
	mu       sync.Mutex
	inserted []*domain.PendingJob
}

func (f *fakePendingJobStore) Insert(_ context.Context, applicationID uuid.UUID, taskName string, jobArgs map[string]interface{}) (*domain.PendingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &domain.PendingJob{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		TaskName:      taskName,
		JobArgs:       jobArgs,
		Status:        domain.PendingJobPending,
		CreatedAt:     time.Now().UTC(),
	}
	f.inserted = append(f.inserted, job)
	return job, nil
}

// nopPublisher records published updates.
type nopPublisher struct {
	mu      sync.Mutex
	updates []domain.ApplicationStatus
}

func (p *nopPublisher) PublishUpdate(_ context.Context, app *domain.Application) {
	p.mu.Lock()
	p.updates = append(p.updates, app.Status)
	p.mu.Unlock()
}

// Guard: the real repositories must satisfy the handler interfaces.
var (
	_ ApplicationStore  = (*repository.ApplicationRepository)(nil)
	_ WebhookEventStore = (*repository.WebhookEventRepository)(nil)
	_ AuditLogStore     = (*repository.AuditLogRepository)(nil)
	_ FailedJobStore    = (*repository.FailedJobRepository)(nil)
	_ PendingJobStore   = (*repository.PendingJobRepository)(nil)
	_ error             = (*apperrors.AppError)(nil)
)
