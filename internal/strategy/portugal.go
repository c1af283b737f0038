package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// PortugalStrategy evaluates Portuguese applications (document: NIF).
type PortugalStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *PortugalStrategy) Country() domain.CountryCode { return domain.CountryPortugal }

// ValidateDocument checks a Portuguese NIF: 9 digits where the last is a
// checksum. The first 8 digits are weighted 9..2, summed, and the checksum
// is 11 - (sum mod 11), folding 10 and 11 to 0.
func (s *PortugalStrategy) ValidateDocument(document string) ValidationResult {
	doc := normalizeDocument(document)

	if len(doc) != 9 {
		return invalid(fmt.Sprintf("NIF must be exactly 9 digits long (received %d)", len(doc)))
	}
	if !isDigits(doc) {
		return invalid("NIF must contain only digits")
	}

	sum := 0
	for i := 0; i < 8; i++ {
		sum += int(doc[i]-'0') * (9 - i)
	}
	checksum := 11 - sum%11
	if checksum >= 10 {
		checksum = 0
	}

	if int(doc[8]-'0') != checksum {
		return invalid(fmt.Sprintf("NIF checksum invalid. Expected %d, got %d", checksum, doc[8]-'0'))
	}

	return ValidationResult{Valid: true}
}

// Evaluate applies the Portuguese rule set:
//
//  1. Maximum loan amount 30 000 EUR (hard limit, immediate rejection)
//  2. Minimum monthly income 800 EUR
//  3. Loan within 4x annual income
//  4. Debt-to-income ratio below 40%
//  5. Credit score at least 600
//  6. No active defaults
func (s *PortugalStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	requiresReview := false
	riskPoints := decimal.Zero

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		return hardReject([]string{fmt.Sprintf(
			"Requested amount (EUR %s) exceeds maximum allowed (EUR %s)",
			input.RequestedAmount.StringFixed(2), s.rules.MaxLoanAmount.StringFixed(2))})
	}

	if input.MonthlyIncome.LessThan(s.rules.MinIncome) {
		reasons = append(reasons, fmt.Sprintf(
			"Monthly income (EUR %s) below minimum (EUR %s)",
			input.MonthlyIncome.StringFixed(2), s.rules.MinIncome.StringFixed(2)))
		riskPoints = riskPoints.Add(penaltyLowIncome)
	}

	annualIncome := input.MonthlyIncome.Mul(monthsPerYear)
	loanToIncome := hundredPercent
	if annualIncome.IsPositive() && annualIncome.Abs().GreaterThanOrEqual(domain.MinAmount) {
		loanToIncome = input.RequestedAmount.Div(annualIncome)
	}
	if loanToIncome.GreaterThan(s.rules.MaxLoanToIncomeRatio) {
		reasons = append(reasons, fmt.Sprintf(
			"Loan amount (%sx) exceeds maximum (%sx annual income)",
			loanToIncome.StringFixed(2), s.rules.MaxLoanToIncomeRatio.String()))
		riskPoints = riskPoints.Add(penaltyHighAmount)
		requiresReview = true
	}

	if input.Banking.MonthlyObligations != nil && input.Banking.MonthlyObligations.IsPositive() {
		dti := debtToIncomeRatio(input.MonthlyIncome, *input.Banking.MonthlyObligations)
		if dti.GreaterThan(s.rules.MaxDebtToIncomePct) {
			reasons = append(reasons, fmt.Sprintf(
				"Debt-to-income ratio too high: %s%% (max %s%%)",
				dti.StringFixed(1), s.rules.MaxDebtToIncomePct.String()))
			riskPoints = riskPoints.Add(penaltyLowCredit)
		}
	}

	if input.Banking.CreditScore != nil {
		switch score := *input.Banking.CreditScore; {
		case score < s.rules.MinCreditScore:
			reasons = append(reasons, fmt.Sprintf(
				"Credit score below minimum: %d (min %d)", score, s.rules.MinCreditScore))
			riskPoints = riskPoints.Add(penaltyHighAmount)
		case score >= highScoreThreshold:
			reasons = append(reasons, "Excellent credit score")
			riskPoints = riskPoints.Sub(adjustGoodAccountAge)
		}
	}

	if input.Banking.HasDefaults {
		reasons = append(reasons, "Has active defaults in credit bureau")
		riskPoints = riskPoints.Add(penaltyDefault)
		requiresReview = true
	}

	paymentRatio := paymentToIncomeRatio(input.RequestedAmount, input.MonthlyIncome, defaultLoanTermES)
	if paymentRatio.GreaterThan(maxPaymentRatioPct) {
		reasons = append(reasons, fmt.Sprintf(
			"New loan payment would be %s%% of income (concerning if >%s%%)",
			paymentRatio.StringFixed(1), maxPaymentRatioPct.String()))
		riskPoints = riskPoints.Add(penaltyHighDebt)
	}

	return finalizeByScore(riskPoints, requiresReview, reasons)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
