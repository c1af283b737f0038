package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a processing failure. Retry classification is a total
// function of Kind: permanent kinds are never retried, transient kinds are
// retried with backoff until the attempt budget is exhausted.
type Kind string

// Permanent kinds.
const (
	KindInvalidApplicationID Kind = "InvalidApplicationId"
	KindApplicationNotFound  Kind = "ApplicationNotFound"
	KindValidation           Kind = "ValidationError"
	KindStateTransition      Kind = "StateTransitionError"
	KindUnsupportedCountry   Kind = "UnsupportedCountry"
)

// Transient kinds.
const (
	KindDatabaseUnavailable Kind = "DatabaseUnavailable"
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindNetworkTimeout      Kind = "NetworkTimeout"
	KindConnection          Kind = "ConnectionError"
	KindRecoverable         Kind = "RecoverableError"
)

// IsRetryable reports whether the kind admits retries.
func (k Kind) IsRetryable() bool {
	switch k {
	case KindDatabaseUnavailable, KindProviderUnavailable, KindNetworkTimeout,
		KindConnection, KindRecoverable:
		return true
	}
	return false
}

// ProcessingError is a classified failure raised from the async pipeline.
type ProcessingError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Permanent creates a permanent processing error. Kinds that are actually
// transient are accepted as-is; classification always follows the Kind.
func Permanent(kind Kind, format string, args ...interface{}) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Transient creates a transient processing error wrapping a cause.
func Transient(kind Kind, cause error, format string, args ...interface{}) *ProcessingError {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// ClassifyProcessing extracts the ProcessingError from err. Unclassified
// errors default to transient (KindRecoverable) so an unexpected failure is
// retried rather than silently dropped.
func ClassifyProcessing(err error) *ProcessingError {
	var procErr *ProcessingError
	if errors.As(err, &procErr) {
		return procErr
	}
	return &ProcessingError{Kind: KindRecoverable, Message: err.Error(), Err: err}
}
