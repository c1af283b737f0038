// Package strategy implements the per-country credit rules.
//
// Each supported country provides two pure capabilities: identity-document
// validation (format and checksum, no I/O) and credit evaluation against the
// country's business rule table. Banking data arrives from the provider
// gateway; strategies never call out themselves.
package strategy

import (
	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/provider"
)

// ValidationResult is the outcome of a document validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// invalid builds a failed result with one error.
func invalid(msg string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []string{msg}}
}

// EvaluationInput is everything a strategy needs to score an application.
type EvaluationInput struct {
	RequestedAmount     decimal.Decimal
	MonthlyIncome       decimal.Decimal
	Banking             provider.BankingData
	CountrySpecificData map[string]interface{}
}

// Assessment is a strategy evaluation result. RiskScore is a fixed-point
// decimal in [0, 100].
type Assessment struct {
	RiskScore      decimal.Decimal
	RiskLevel      domain.RiskLevel
	Recommendation domain.Recommendation
	Reasons        []string
	RequiresReview bool
}

// Strategy is one country's rule set.
type Strategy interface {
	// Country returns the strategy's country code.
	Country() domain.CountryCode

	// ValidateDocument checks the identity document format and checksum.
	// Synchronous and pure.
	ValidateDocument(document string) ValidationResult

	// Evaluate applies the country's business rules. Pure; returns the
	// recommendation and a risk score in [0, 100].
	Evaluate(input EvaluationInput) Assessment
}

// Shared risk point weights across countries.
var (
	penaltyDefault        = decimal.NewFromInt(35)
	penaltyLowIncome      = decimal.NewFromInt(30)
	penaltyLowCredit      = decimal.NewFromInt(30)
	penaltyHighAmount     = decimal.NewFromInt(25)
	penaltyHighRatio      = decimal.NewFromInt(25)
	penaltyHighDebt       = decimal.NewFromInt(20)
	penaltyAboveThreshold = decimal.NewFromInt(15)
	penaltyDefaultsES     = decimal.NewFromInt(40)
	adjustHighCredit      = decimal.NewFromInt(15)
	adjustGoodCredit      = decimal.NewFromInt(10)
	adjustGoodAccountAge  = decimal.NewFromInt(10)
	adjustLowPaymentRatio = decimal.NewFromInt(5)
	adjustAccountAgeBR    = decimal.NewFromInt(5)
)

// Credit score reference points.
const (
	highScoreThreshold = 750
	goodScoreThreshold = 700
)

// Common calculation constants.
var (
	monthsPerYear       = decimal.NewFromInt(12)
	percent             = decimal.NewFromInt(100)
	hundredPercent      = decimal.RequireFromString("100.0")
	defaultLoanTermES   = decimal.NewFromInt(36)
	shortLoanTerm       = decimal.NewFromInt(12)
	maxPaymentRatioPct  = decimal.RequireFromString("35.0")
	lowPaymentRatioPct  = decimal.RequireFromString("15.0")
	minPassingScore     = decimal.NewFromInt(10)
	maxDebtIncomeMonths = decimal.NewFromInt(6)
)

// debtToIncomeRatio returns monthly_debt / monthly_income as a percentage.
// Non-positive income means the ratio is pinned at 100%.
func debtToIncomeRatio(monthlyIncome, monthlyDebt decimal.Decimal) decimal.Decimal {
	if monthlyIncome.LessThanOrEqual(decimal.Zero) || monthlyIncome.Abs().LessThan(domain.MinAmount) {
		return hundredPercent
	}
	return monthlyDebt.Div(monthlyIncome).Mul(percent)
}

// paymentToIncomeRatio estimates the new monthly payment over loanTerm
// months as a percentage of income.
func paymentToIncomeRatio(requestedAmount, monthlyIncome, loanTerm decimal.Decimal) decimal.Decimal {
	estimatedPayment := requestedAmount.Div(loanTerm)
	if monthlyIncome.LessThanOrEqual(decimal.Zero) || monthlyIncome.Abs().LessThan(domain.MinAmount) {
		return hundredPercent
	}
	return estimatedPayment.Div(monthlyIncome).Mul(percent)
}

// finalizeByScore applies the shared score → (level, recommendation)
// mapping used by the points-accumulation countries (ES, PT, IT, MX).
func finalizeByScore(riskPoints decimal.Decimal, requiresReview bool, reasons []string) Assessment {
	score := domain.ClampRiskScore(riskPoints)
	level := domain.RiskLevelFor(score)

	var recommendation domain.Recommendation
	switch level {
	case domain.RiskCritical:
		recommendation = domain.RecommendationReject
	case domain.RiskHigh:
		recommendation = domain.RecommendationReview
		requiresReview = true
	case domain.RiskMedium:
		if requiresReview {
			recommendation = domain.RecommendationReview
		} else {
			recommendation = domain.RecommendationApprove
		}
	default:
		recommendation = domain.RecommendationApprove
	}

	if len(reasons) == 0 {
		reasons = []string{"Standard credit profile"}
	}

	return Assessment{
		RiskScore:      score,
		RiskLevel:      level,
		Recommendation: recommendation,
		Reasons:        reasons,
		RequiresReview: requiresReview,
	}
}

// hardReject is the immediate-rejection assessment for hard limit breaches.
func hardReject(reasons []string) Assessment {
	return Assessment{
		RiskScore:      decimal.NewFromInt(100),
		RiskLevel:      domain.RiskCritical,
		Recommendation: domain.RecommendationReject,
		Reasons:        reasons,
		RequiresReview: false,
	}
}
