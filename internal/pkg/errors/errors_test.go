package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeApplicationNotFound, "application not found", http.StatusNotFound),
			want: "APPLICATION_NOT_FOUND: application not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := Conflict(CodeDuplicateActive, "active application exists")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeDuplicateActive {
		t.Errorf("Code = %q, want %q", got.Code, CodeDuplicateActive)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Unauthorized", Unauthorized("UA", "unauthorized"), http.StatusUnauthorized},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"UnprocessableEntity", UnprocessableEntity("UE", "unprocessable"), http.StatusUnprocessableEntity},
		{"PayloadTooLarge", PayloadTooLarge("PL", "too large"), http.StatusRequestEntityTooLarge},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestKind_IsRetryable(t *testing.T) {
	permanent := []Kind{
		KindInvalidApplicationID,
		KindApplicationNotFound,
		KindValidation,
		KindStateTransition,
		KindUnsupportedCountry,
	}
	transient := []Kind{
		KindDatabaseUnavailable,
		KindProviderUnavailable,
		KindNetworkTimeout,
		KindConnection,
		KindRecoverable,
	}

	for _, k := range permanent {
		if k.IsRetryable() {
			t.Errorf("kind %s should not be retryable", k)
		}
	}
	for _, k := range transient {
		if !k.IsRetryable() {
			t.Errorf("kind %s should be retryable", k)
		}
	}
}

func TestClassifyProcessing(t *testing.T) {
	perm := Permanent(KindApplicationNotFound, "application %s not found", "x")
	wrapped := fmt.Errorf("work failed: %w", perm)

	got := ClassifyProcessing(wrapped)
	if got.Kind != KindApplicationNotFound {
		t.Errorf("Kind = %s, want %s", got.Kind, KindApplicationNotFound)
	}

	// Unclassified errors default to transient.
	got = ClassifyProcessing(errors.New("boom"))
	if got.Kind != KindRecoverable {
		t.Errorf("Kind = %s, want %s", got.Kind, KindRecoverable)
	}
	if !got.Kind.IsRetryable() {
		t.Error("unclassified errors must be retryable")
	}
}

func TestTransient_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(KindProviderUnavailable, cause, "provider %s down", "Spanish Banking Provider")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should match wrapped cause")
	}
	if err.Kind != KindProviderUnavailable {
		t.Errorf("Kind = %s, want %s", err.Kind, KindProviderUnavailable)
	}
}
