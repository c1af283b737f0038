package strategy

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// ItalyStrategy evaluates Italian applications (document: Codice Fiscale).
type ItalyStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *ItalyStrategy) Country() domain.CountryCode { return domain.CountryItaly }

var (
	codiceFiscalePattern = regexp.MustCompile(`^[A-Z0-9]{16}$`)
	codiceLetterPrefix   = regexp.MustCompile(`^[A-Z]{6}`)
)

// validMonthChars are the Codice Fiscale month letters (A=Jan .. P=Sep,
// R=Oct, S=Nov, T=Dec).
const validMonthChars = "ABCDEHLMPRST"

// ValidateDocument checks an Italian Codice Fiscale structurally:
// 16 alphanumeric characters in the SSSNNNYYMDDZZZZX layout. Soft layout
// deviations are warnings, not errors, mirroring how real codes for
// foreign-born holders bend the rules.
func (s *ItalyStrategy) ValidateDocument(document string) ValidationResult {
	doc := normalizeDocument(document)
	var warnings []string

	if len(doc) != 16 {
		return invalid(fmt.Sprintf("Codice Fiscale must be exactly 16 characters long (received %d)", len(doc)))
	}
	if !codiceFiscalePattern.MatchString(doc) {
		return invalid("Codice Fiscale must contain only uppercase letters and numbers")
	}

	if !codiceLetterPrefix.MatchString(doc) {
		warnings = append(warnings, "First 6 characters should typically be letters")
	}
	if !isDigits(doc[6:8]) {
		warnings = append(warnings, "Year part (characters 7-8) should be digits")
	}
	monthChar := doc[8]
	found := false
	for i := 0; i < len(validMonthChars); i++ {
		if validMonthChars[i] == monthChar {
			found = true
			break
		}
	}
	if !found {
		warnings = append(warnings, fmt.Sprintf("Month character %q may be invalid", string(monthChar)))
	}
	if !isDigits(doc[9:11]) {
		warnings = append(warnings, "Day part (characters 10-11) should be digits")
	}
	if last := doc[15]; last < 'A' || last > 'Z' {
		warnings = append(warnings, "Check character (last) should be a letter")
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// Evaluate applies the Italian rule set:
//
//  1. Minimum monthly income 1 200 EUR
//  2. Maximum loan amount 50 000 EUR (hard limit)
//  3. Debt-to-income ratio below 35%
//  4. Credit score at least 600
//  5. No active defaults
//  6. Financial stability: amounts above two years of income need review
func (s *ItalyStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	requiresReview := false
	riskPoints := decimal.Zero

	if input.MonthlyIncome.LessThan(s.rules.MinIncome) {
		reasons = append(reasons, fmt.Sprintf(
			"Monthly income (EUR %s) below minimum (EUR %s)",
			input.MonthlyIncome.StringFixed(2), s.rules.MinIncome.StringFixed(2)))
		riskPoints = riskPoints.Add(penaltyLowIncome)
	}

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		reasons = append(reasons, fmt.Sprintf(
			"Requested amount (EUR %s) exceeds maximum allowed (EUR %s)",
			input.RequestedAmount.StringFixed(2), s.rules.MaxLoanAmount.StringFixed(2)))
		return hardReject(reasons)
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
	if paymentRatio.GreaterThan(decimal.RequireFromString("30.0")) {
		reasons = append(reasons, fmt.Sprintf(
			"New loan payment would be %s%% of income (concerning if >30%%)",
			paymentRatio.StringFixed(1)))
		riskPoints = riskPoints.Add(penaltyHighDebt)
	}

	annualIncome := input.MonthlyIncome.Mul(monthsPerYear)
	if input.RequestedAmount.GreaterThan(annualIncome.Mul(decimal.NewFromInt(2))) {
		reasons = append(reasons,
			"Requested amount exceeds 2 years of annual income - financial stability review required")
		riskPoints = riskPoints.Add(penaltyAboveThreshold)
		requiresReview = true
	}

	return finalizeByScore(riskPoints, requiresReview, reasons)
}
