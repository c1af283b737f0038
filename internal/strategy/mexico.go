package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// MexicoStrategy evaluates Mexican applications (document: CURP).
type MexicoStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *MexicoStrategy) Country() domain.CountryCode { return domain.CountryMexico }

var curpPattern = regexp.MustCompile(`^[A-Z]{4}\d{6}[HM][A-Z]{5}\d{2}$`)

// curpStates is the standard state code catalog (NE = born abroad).
var curpStates = map[string]bool{
	"AS": true, "BC": true, "BS": true, "CC": true, "CL": true, "CM": true,
	"CS": true, "CH": true, "DF": true, "DG": true, "GT": true, "GR": true,
	"HG": true, "JC": true, "MC": true, "MN": true, "MS": true, "NT": true,
	"NL": true, "OC": true, "PL": true, "QT": true, "QR": true, "SP": true,
	"SL": true, "SR": true, "TC": true, "TS": true, "TL": true, "VZ": true,
	"YN": true, "ZS": true, "NE": true,
}

// ValidateDocument checks a Mexican CURP: 18 characters in the
// AAAA######HBBCCCDD layout, a plausible birth date, adult age, gender code
// and state code.
func (s *MexicoStrategy) ValidateDocument(document string) ValidationResult {
	doc := normalizeDocument(document)
	var errs, warnings []string

	if len(doc) != 18 {
		return invalid(fmt.Sprintf("CURP must be exactly 18 characters long (received %d)", len(doc)))
	}
	if !curpPattern.MatchString(doc) {
		return invalid("CURP format invalid. Expected format: AAAA######HBBCCCDD (e.g., HERM850101MDFRRR01)")
	}

	year, _ := strconv.Atoi(doc[4:6])
	month, _ := strconv.Atoi(doc[6:8])
	day, _ := strconv.Atoi(doc[8:10])

	currentYear := time.Now().Year() % 100
	fullYear := 1900 + year
	if year <= currentYear {
		fullYear = 2000 + year
	}

	birthDate := time.Date(fullYear, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if birthDate.Year() != fullYear || int(birthDate.Month()) != month || birthDate.Day() != day {
		errs = append(errs, fmt.Sprintf("Invalid date of birth in CURP: %s", doc[4:10]))
	} else if age := yearsSince(birthDate); age < 18 {
		errs = append(errs, fmt.Sprintf("Applicant must be at least 18 years old (age: %d)", age))
	}

	if !curpStates[doc[11:13]] {
		warnings = append(warnings, fmt.Sprintf("State code %q not recognized in standard catalog", doc[11:13]))
	}

	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs, Warnings: warnings}
	}
	return ValidationResult{Valid: true, Warnings: warnings}
}

// Evaluate applies the Mexican rule set:
//
//  1. Maximum loan amount 200 000 MXN (hard limit, immediate rejection)
//  2. Minimum monthly income 5 000 MXN
//  3. Loan within 3x annual income
//  4. Payment-to-income ratio within 30%
//  5. Total debt-to-income below 45%, credit score at least 550, no defaults
func (s *MexicoStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	requiresReview := false
	riskPoints := decimal.Zero

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		return hardReject([]string{fmt.Sprintf(
			"Requested amount (MXN %s) exceeds maximum allowed (MXN %s)",
			input.RequestedAmount.StringFixed(2), s.rules.MaxLoanAmount.StringFixed(2))})
	}

	if input.MonthlyIncome.LessThan(s.rules.MinIncome) {
		reasons = append(reasons, fmt.Sprintf(
			"Monthly income below minimum: MXN %s (min MXN %s)",
			input.MonthlyIncome.StringFixed(2), s.rules.MinIncome.StringFixed(2)))
		riskPoints = riskPoints.Add(decimal.NewFromInt(40))
	}

	annualIncome := input.MonthlyIncome.Mul(monthsPerYear)
	maxAllowedLoan := annualIncome.Mul(s.rules.MaxLoanToIncomeRatio)
	if input.RequestedAmount.GreaterThan(maxAllowedLoan) {
		reasons = append(reasons, fmt.Sprintf(
			"Requested amount MXN %s exceeds maximum allowed (MXN %s = %sx annual income)",
			input.RequestedAmount.StringFixed(2), maxAllowedLoan.StringFixed(2),
			s.rules.MaxLoanToIncomeRatio.String()))
		riskPoints = riskPoints.Add(decimal.NewFromInt(35))
		requiresReview = true
	}

	paymentRatio := paymentToIncomeRatio(input.RequestedAmount, input.MonthlyIncome, defaultLoanTermES)
	switch {
	case paymentRatio.GreaterThan(s.rules.MaxPaymentIncomePct):
		reasons = append(reasons, fmt.Sprintf(
			"Monthly payment would be %s%% of income (max %s%%)",
			paymentRatio.StringFixed(1), s.rules.MaxPaymentIncomePct.String()))
		riskPoints = riskPoints.Add(penaltyHighRatio)
	case paymentRatio.LessThanOrEqual(lowPaymentRatioPct):
		reasons = append(reasons, "Monthly payment is comfortably within income")
		riskPoints = riskPoints.Sub(adjustLowPaymentRatio)
	}

	if input.Banking.MonthlyObligations != nil && input.Banking.MonthlyObligations.IsPositive() {
		newPayment := input.RequestedAmount.Div(defaultLoanTermES)
		totalDebt := input.Banking.MonthlyObligations.Add(newPayment)
		totalDTI := debtToIncomeRatio(input.MonthlyIncome, totalDebt)
		if totalDTI.GreaterThan(s.rules.MaxDebtToIncomePct) {
			reasons = append(reasons, fmt.Sprintf(
				"Total debt-to-income ratio would be %s%% (concerning if >%s%%)",
				totalDTI.StringFixed(1), s.rules.MaxDebtToIncomePct.String()))
			riskPoints = riskPoints.Add(penaltyLowCredit)
		}
	}

	if input.Banking.CreditScore != nil {
		switch score := *input.Banking.CreditScore; {
		case score < s.rules.MinCreditScore:
			reasons = append(reasons, fmt.Sprintf(
				"Credit score low: %d (min recommended %d)", score, s.rules.MinCreditScore))
			riskPoints = riskPoints.Add(penaltyLowCredit)
		case score >= goodScoreThreshold:
			reasons = append(reasons, "Good credit score")
			riskPoints = riskPoints.Sub(adjustGoodCredit)
		}
	}

	if input.Banking.HasDefaults {
		reasons = append(reasons, "Has active defaults or late payments in Buró de Crédito")
		riskPoints = riskPoints.Add(penaltyDefault)
		requiresReview = true
	}

	return finalizeByScore(riskPoints, requiresReview, reasons)
}

func yearsSince(birthDate time.Time) int {
	now := time.Now().UTC()
	years := now.Year() - birthDate.Year()
	if now.YearDay() < birthDate.YearDay() {
		years--
	}
	return years
}
