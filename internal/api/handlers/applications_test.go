package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-core.io/creditcore/internal/api/middleware"
	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/strategy"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type testEnv struct {
	router    *gin.Engine
	apps      *fakeAppStore
	webhooks  *fakeWebhookStore
	failed    *fakeFailedJobStore
	pending   *fakePendingJobStore
	publisher *nopPublisher
	secret    []byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		apps:      newFakeAppStore(),
		webhooks:  newFakeWebhookStore(),
		failed:    newFakeFailedJobStore(),
		pending:   &fakePendingJobStore{},
		publisher: &nopPublisher{},
		secret:    []byte(strings.Repeat("s", 32)),
	}

	server := NewServer(Config{
		Apps:          env.apps,
		Webhooks:      env.webhooks,
		Audits:        fakeAuditStore{},
		FailedJobs:    env.failed,
		PendingJobs:   env.pending,
		Strategies:    strategy.NewRegistry(strategy.DefaultRules()),
		Publisher:     env.publisher,
		WebhookSecret: env.secret,
	})

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.POST("/applications", server.CreateApplication)
	router.GET("/applications/:id", server.GetApplication)
	router.POST("/applications/:id/cancel", server.CancelApplication)
	router.POST("/webhooks/bank-confirmation", server.BankConfirmationWebhook)
	router.POST("/admin/failed-jobs/:id/retry", server.RetryFailedJob)

	env.router = router
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func validCreateBody() map[string]interface{} {
	return map[string]interface{}{
		"country":           "ES",
		"full_name":         "Juan García López",
		"identity_document": "12345678Z",
		"requested_amount":  "15000.00",
		"monthly_income":    "3500.00",
		"currency":          "EUR",
		"idempotency_key":   "k1",
	}
}

func TestCreateApplication_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/applications", validCreateBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ApplicationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "Juan García López", resp.FullName)
	assert.Equal(t, "12345678Z", resp.IdentityDocument)
	assert.Equal(t, "15000.00", resp.RequestedAmount)
	assert.NotEmpty(t, resp.ID)
}

func TestCreateApplication_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/applications", validCreateBody(), nil)
	require.Equal(t, http.StatusCreated, first.Code)
	var firstResp ApplicationResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := env.do(t, http.MethodPost, "/applications", validCreateBody(), nil)
	require.Equal(t, http.StatusCreated, second.Code)
	var secondResp ApplicationResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	assert.Equal(t, firstResp.ID, secondResp.ID, "replay must return the same application")
	assert.Len(t, env.apps.apps, 1, "replay must not insert a second row")
}

func TestCreateApplication_DuplicateActive(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, http.MethodPost, "/applications", validCreateBody(), nil)
	require.Equal(t, http.StatusCreated, first.Code)

	body := validCreateBody()
	body["idempotency_key"] = "k2"
	second := env.do(t, http.MethodPost, "/applications", body, nil)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "DUPLICATE_ACTIVE_APPLICATION")
	assert.Len(t, env.apps.apps, 1)
}

func TestCreateApplication_ValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		code   int
		substr string
	}{
		{"unsupported country", func(b map[string]interface{}) { b["country"] = "AR" },
			http.StatusBadRequest, "COUNTRY_NOT_SUPPORTED"},
		{"currency mismatch", func(b map[string]interface{}) { b["currency"] = "USD" },
			http.StatusBadRequest, "CURRENCY_MISMATCH"},
		{"bad document checksum", func(b map[string]interface{}) { b["identity_document"] = "12345678A" },
			http.StatusBadRequest, "DOCUMENT_INVALID"},
		{"single-word name", func(b map[string]interface{}) { b["full_name"] = "Juan" },
			http.StatusBadRequest, "VALIDATION_FAILED"},
		{"amount precision overflow", func(b map[string]interface{}) { b["requested_amount"] = "10000000000.00" },
			http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE"},
		{"amount with three decimals", func(b map[string]interface{}) { b["requested_amount"] = "100.555" },
			http.StatusBadRequest, "AMOUNT_OUT_OF_RANGE"},
		{"missing field", func(b map[string]interface{}) { delete(b, "monthly_income") },
			http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validCreateBody()
			tt.mutate(body)
			rec := env.do(t, http.MethodPost, "/applications", body, nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.substr)
		})
	}
}

func TestGetApplication_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/applications/00000000-0000-0000-0000-000000000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelApplication(t *testing.T) {
	env := newTestEnv(t)
	app := env.apps.seed(domain.CountrySpain, "12345678Z", domain.StatusPending)

	rec := env.do(t, http.MethodPost, "/applications/"+app.ID.String()+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "CANCELLED")

	// Cancelling a terminal application is rejected by the state machine.
	rec = env.do(t, http.MethodPost, "/applications/"+app.ID.String()+"/cancel", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
