package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// SpainStrategy evaluates Spanish applications (document: DNI).
type SpainStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *SpainStrategy) Country() domain.CountryCode { return domain.CountrySpain }

var dniPattern = regexp.MustCompile(`^\d{8}[A-Z]$`)

// dniLetters maps number mod 23 to the DNI control letter.
const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// ValidateDocument checks a Spanish DNI: 8 digits plus a control letter
// computed as the number modulo 23.
func (s *SpainStrategy) ValidateDocument(document string) ValidationResult {
	doc := normalizeDocument(document)

	if !dniPattern.MatchString(doc) {
		return invalid("DNI format invalid. Must be 8 digits followed by a letter (e.g., 12345678Z)")
	}

	number := 0
	for _, r := range doc[:8] {
		number = number*10 + int(r-'0')
	}
	expected := dniLetters[number%23]

	if doc[8] != expected {
		return invalid(fmt.Sprintf("DNI checksum invalid. Expected letter %q but got %q",
			string(expected), string(doc[8])))
	}

	return ValidationResult{Valid: true}
}

// Evaluate applies the Spanish rule set:
//
//  1. Maximum loan amount 50 000 EUR (hard limit, immediate rejection)
//  2. Amounts above 20 000 EUR require review
//  3. Debt-to-income ratio below 40%
//  4. Credit score at least 600
//  5. No active defaults
//  6. Estimated payment within 35% of income
func (s *SpainStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	requiresReview := false
	riskPoints := decimal.Zero

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		return hardReject([]string{fmt.Sprintf(
			"Requested amount (EUR %s) exceeds maximum allowed (EUR %s)",
			input.RequestedAmount.StringFixed(2), s.rules.MaxLoanAmount.StringFixed(2))})
	}

	if input.RequestedAmount.GreaterThan(s.rules.HighAmountThreshold) {
		requiresReview = true
		reasons = append(reasons, fmt.Sprintf(
			"Amount exceeds high threshold (EUR %s) - requires additional review",
			s.rules.HighAmountThreshold.StringFixed(2)))
		riskPoints = riskPoints.Add(penaltyAboveThreshold)
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
		riskPoints = riskPoints.Add(penaltyDefaultsES)
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

// normalizeDocument uppercases and strips spaces and dashes.
func normalizeDocument(document string) string {
	doc := strings.ToUpper(strings.TrimSpace(document))
	doc = strings.ReplaceAll(doc, " ", "")
	return strings.ReplaceAll(doc, "-", "")
}
