package domain

import (
	"fmt"
	"sort"
	"strings"

	apperrors "credit-core.io/creditcore/internal/pkg/errors"
)

// allowedTransitions is the authoritative transition table. Any pair absent
// from this table is forbidden.
//
//	PENDING      → VALIDATING, CANCELLED
//	VALIDATING   → APPROVED, REJECTED, UNDER_REVIEW
//	UNDER_REVIEW → APPROVED, REJECTED
//
// APPROVED, REJECTED, CANCELLED and COMPLETED are terminal.
var allowedTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusPending:     {StatusValidating, StatusCancelled},
	StatusValidating:  {StatusApproved, StatusRejected, StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {},
	StatusRejected:    {},
	StatusCancelled:   {},
	StatusCompleted:   {},
}

// terminalStatuses is the immutable set of final states.
var terminalStatuses = map[ApplicationStatus]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// IsTerminal reports whether status admits no further transition.
func IsTerminal(status ApplicationStatus) bool {
	return terminalStatuses[status]
}

// AllowedTransitions returns the legal targets from status, sorted for
// stable error messages.
func AllowedTransitions(status ApplicationStatus) []ApplicationStatus {
	targets := allowedTransitions[status]
	out := make([]ApplicationStatus, len(targets))
	copy(out, targets)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateTransition checks the transition table. A self-transition is a
// no-op and always allowed. Violations surface as the permanent
// StateTransitionError kind so the retry policy never retries them.
func ValidateTransition(from, to ApplicationStatus) error {
	if from == to {
		return nil
	}

	if IsTerminal(from) {
		return apperrors.Permanent(apperrors.KindStateTransition,
			"cannot change status from terminal state %q", from)
	}

	targets, ok := allowedTransitions[from]
	if !ok {
		return apperrors.Permanent(apperrors.KindStateTransition,
			"unknown current status %q", from)
	}

	for _, target := range targets {
		if target == to {
			return nil
		}
	}

	return apperrors.Permanent(apperrors.KindStateTransition,
		"invalid state transition %q → %q (valid: %s)", from, to, joinStatuses(targets))
}

func joinStatuses(statuses []ApplicationStatus) string {
	if len(statuses) == 0 {
		return "none"
	}
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// MapRecommendation translates a strategy recommendation into the resulting
// status. Anything that is not an explicit approve/reject lands on
// UNDER_REVIEW: the conservative default for fallback-derived results.
func MapRecommendation(recommendation Recommendation) ApplicationStatus {
	switch recommendation {
	case RecommendationApprove:
		return StatusApproved
	case RecommendationReject:
		return StatusRejected
	default:
		return StatusUnderReview
	}
}

// Recommendation is a strategy evaluation outcome.
type Recommendation string

const (
	RecommendationApprove Recommendation = "APPROVE"
	RecommendationReject  Recommendation = "REJECT"
	RecommendationReview  Recommendation = "REVIEW"
)

// ParseStatus validates a status string from an external caller.
func ParseStatus(raw string) (ApplicationStatus, error) {
	status := ApplicationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range AllStatuses {
		if s == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}
