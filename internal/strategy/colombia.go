package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// ColombiaStrategy evaluates Colombian applications (document: Cédula de
// Ciudadanía).
type ColombiaStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *ColombiaStrategy) Country() domain.CountryCode { return domain.CountryColombia }

// ValidateDocument checks a Colombian Cédula: 6 to 10 digits. The registry
// assigns numbers sequentially, so there is no checksum to verify.
func (s *ColombiaStrategy) ValidateDocument(document string) ValidationResult {
	digits := make([]byte, 0, len(document))
	for i := 0; i < len(document); i++ {
		if document[i] >= '0' && document[i] <= '9' {
			digits = append(digits, document[i])
		}
	}

	if len(digits) < 6 || len(digits) > 10 {
		return invalid(fmt.Sprintf("Cédula must have 6-10 digits, got %d", len(digits)))
	}
	return ValidationResult{Valid: true}
}

// Evaluate applies the Colombian rule set. Unlike the points-accumulation
// countries, any hard-rule breach rejects outright:
//
//  1. Minimum monthly income COP 1 500 000
//  2. Maximum loan amount COP 50 000 000
//  3. Payment-to-income ratio within 40% over a 12-month term
//  4. Credit score at least 600, no defaults in DataCrédito
//  5. Total debt above 6 months of income needs review
func (s *ColombiaStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	riskScore := decimal.Zero
	decision := domain.RecommendationApprove

	if input.MonthlyIncome.LessThan(s.rules.MinIncome) {
		reasons = append(reasons, fmt.Sprintf(
			"Monthly income (COP %s) below minimum (COP %s)",
			input.MonthlyIncome.StringFixed(0), s.rules.MinIncome.StringFixed(0)))
		riskScore = riskScore.Add(penaltyLowIncome)
		decision = domain.RecommendationReject
	}

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		reasons = append(reasons, fmt.Sprintf(
			"Requested amount (COP %s) exceeds maximum (COP %s)",
			input.RequestedAmount.StringFixed(0), s.rules.MaxLoanAmount.StringFixed(0)))
		riskScore = riskScore.Add(penaltyHighAmount)
		decision = domain.RecommendationReject
	}

	monthlyPayment := input.RequestedAmount.Div(shortLoanTerm)
	totalObligations := monthlyPayment
	if input.Banking.MonthlyObligations != nil {
		totalObligations = totalObligations.Add(*input.Banking.MonthlyObligations)
	}
	paymentToIncome := debtToIncomeRatio(input.MonthlyIncome, totalObligations)
	if paymentToIncome.GreaterThan(s.rules.MaxPaymentIncomePct) {
		reasons = append(reasons, fmt.Sprintf(
			"Payment-to-income ratio (%s%%) exceeds maximum (%s%%)",
			paymentToIncome.StringFixed(1), s.rules.MaxPaymentIncomePct.String()))
		riskScore = riskScore.Add(penaltyHighRatio)
		decision = domain.RecommendationReject
	}

	if input.Banking.CreditScore != nil && *input.Banking.CreditScore < s.rules.MinCreditScore {
		reasons = append(reasons, fmt.Sprintf(
			"Credit score (%d) below minimum (%d)",
			*input.Banking.CreditScore, s.rules.MinCreditScore))
		riskScore = riskScore.Add(penaltyLowCredit)
		decision = domain.RecommendationReject
	}

	if input.Banking.HasDefaults {
		reasons = append(reasons, "Applicant has active defaults in DataCrédito")
		riskScore = riskScore.Add(penaltyDefault)
		decision = domain.RecommendationReject
	}

	if input.Banking.TotalDebt != nil &&
		input.Banking.TotalDebt.GreaterThan(input.MonthlyIncome.Mul(maxDebtIncomeMonths)) {
		reasons = append(reasons, fmt.Sprintf(
			"Total debt (COP %s) exceeds %s months of income",
			input.Banking.TotalDebt.StringFixed(0), maxDebtIncomeMonths.String()))
		riskScore = riskScore.Add(penaltyAboveThreshold)
		if decision == domain.RecommendationApprove {
			decision = domain.RecommendationReview
		}
	}

	if input.Banking.CreditScore != nil && *input.Banking.CreditScore >= highScoreThreshold {
		riskScore = decimal.Max(decimal.Zero, riskScore.Sub(adjustHighCredit))
	}
	if age, ok := accountAgeMonths(input.Banking.AdditionalData); ok && age >= 36 {
		riskScore = decimal.Max(decimal.Zero, riskScore.Sub(adjustGoodAccountAge))
	}

	riskScore = domain.ClampRiskScore(riskScore)

	if len(reasons) == 0 {
		decision = domain.RecommendationApprove
		riskScore = decimal.Max(minPassingScore, riskScore)
		reasons = []string{"Standard credit profile"}
	}

	return Assessment{
		RiskScore:      riskScore,
		RiskLevel:      domain.RiskLevelFor(riskScore),
		Recommendation: decision,
		Reasons:        reasons,
		RequiresReview: decision == domain.RecommendationReview,
	}
}

// accountAgeMonths extracts the provider's account age field, tolerating
// the numeric types JSON decoding produces.
func accountAgeMonths(additionalData map[string]interface{}) (int, bool) {
	if additionalData == nil {
		return 0, false
	}
	switch v := additionalData["account_age_months"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
