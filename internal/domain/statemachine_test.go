package domain

import (
	"testing"

	apperrors "credit-core.io/creditcore/internal/pkg/errors"
)

func TestValidateTransition_AllowedPairs(t *testing.T) {
	allowed := []struct{ from, to ApplicationStatus }{
		{StatusPending, StatusValidating},
		{StatusPending, StatusCancelled},
		{StatusValidating, StatusApproved},
		{StatusValidating, StatusRejected},
		{StatusValidating, StatusUnderReview},
		{StatusUnderReview, StatusApproved},
		{StatusUnderReview, StatusRejected},
	}

	for _, tt := range allowed {
		if err := ValidateTransition(tt.from, tt.to); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", tt.from, tt.to, err)
		}
	}
}

func TestValidateTransition_ForbiddenPairs(t *testing.T) {
	forbidden := []struct{ from, to ApplicationStatus }{
		{StatusPending, StatusApproved},
		{StatusPending, StatusRejected},
		{StatusPending, StatusUnderReview},
		{StatusPending, StatusCompleted},
		{StatusValidating, StatusPending},
		{StatusValidating, StatusCancelled},
		{StatusUnderReview, StatusCancelled},
		{StatusUnderReview, StatusValidating},
	}

	for _, tt := range forbidden {
		err := ValidateTransition(tt.from, tt.to)
		if err == nil {
			t.Errorf("ValidateTransition(%s, %s) = nil, want error", tt.from, tt.to)
			continue
		}
		proc := apperrors.ClassifyProcessing(err)
		if proc.Kind != apperrors.KindStateTransition {
			t.Errorf("ValidateTransition(%s, %s) kind = %s, want StateTransitionError", tt.from, tt.to, proc.Kind)
		}
	}
}

func TestValidateTransition_TerminalStatesAreImmutable(t *testing.T) {
	terminals := []ApplicationStatus{StatusApproved, StatusRejected, StatusCancelled, StatusCompleted}

	for _, from := range terminals {
		for _, to := range AllStatuses {
			if from == to {
				continue
			}
			err := ValidateTransition(from, to)
			if err == nil {
				t.Errorf("ValidateTransition(%s, %s) = nil, want error from terminal state", from, to)
				continue
			}
			if apperrors.ClassifyProcessing(err).Kind.IsRetryable() {
				t.Errorf("transition from terminal %s must be a permanent error", from)
			}
		}
	}
}

func TestValidateTransition_SelfTransitionIsNoop(t *testing.T) {
	for _, s := range AllStatuses {
		if err := ValidateTransition(s, s); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v, want nil", s, s, err)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status ApplicationStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusValidating, false},
		{StatusUnderReview, false},
		{StatusApproved, true},
		{StatusRejected, true},
		{StatusCancelled, true},
		{StatusCompleted, true},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMapRecommendation(t *testing.T) {
	tests := []struct {
		rec  Recommendation
		want ApplicationStatus
	}{
		{RecommendationApprove, StatusApproved},
		{RecommendationReject, StatusRejected},
		{RecommendationReview, StatusUnderReview},
		{Recommendation("anything-else"), StatusUnderReview},
	}

	for _, tt := range tests {
		if got := MapRecommendation(tt.rec); got != tt.want {
			t.Errorf("MapRecommendation(%s) = %s, want %s", tt.rec, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("approved")
	if err != nil || got != StatusApproved {
		t.Errorf("ParseStatus(approved) = %s, %v", got, err)
	}
	if _, err := ParseStatus("NOT_A_STATUS"); err == nil {
		t.Error("ParseStatus(NOT_A_STATUS) should fail")
	}
}
