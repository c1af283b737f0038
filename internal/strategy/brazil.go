package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// BrazilStrategy evaluates Brazilian applications (document: CPF).
type BrazilStrategy struct {
	rules Rules
}

// Country implements Strategy.
func (s *BrazilStrategy) Country() domain.CountryCode { return domain.CountryBrazil }

// ValidateDocument checks a Brazilian CPF: 11 digits with two check digits.
// Each check digit is the weighted sum of the preceding digits times 10,
// modulo 11, with 10 folding to 0. All-equal-digit CPFs are rejected.
func (s *BrazilStrategy) ValidateDocument(document string) ValidationResult {
	cpf := strings.Map(func(r rune) rune {
		if r == '.' || r == '-' || r == ' ' {
			return -1
		}
		return r
	}, document)

	if len(cpf) != 11 {
		return invalid(fmt.Sprintf("CPF must have 11 digits, got %d", len(cpf)))
	}
	if !isDigits(cpf) {
		return invalid("CPF must contain only digits")
	}
	if strings.Count(cpf, string(cpf[0])) == 11 {
		return invalid("CPF cannot have all equal digits")
	}

	sumFirst := 0
	for i := 0; i < 9; i++ {
		sumFirst += int(cpf[i]-'0') * (10 - i)
	}
	firstDigit := (sumFirst * 10) % 11
	if firstDigit == 10 {
		firstDigit = 0
	}
	if int(cpf[9]-'0') != firstDigit {
		return invalid("Invalid CPF checksum (first digit)")
	}

	sumSecond := 0
	for i := 0; i < 10; i++ {
		sumSecond += int(cpf[i]-'0') * (11 - i)
	}
	secondDigit := (sumSecond * 10) % 11
	if secondDigit == 10 {
		secondDigit = 0
	}
	if int(cpf[10]-'0') != secondDigit {
		return invalid("Invalid CPF checksum (second digit)")
	}

	return ValidationResult{Valid: true}
}

// Evaluate applies the Brazilian rule set. Hard-rule breaches reject
// outright; soft breaches accumulate risk:
//
//  1. Minimum monthly income R$ 2 000
//  2. Maximum loan amount R$ 100 000
//  3. Loan within 5x annual income
//  4. Debt-to-income ratio within 35% (review, not reject)
//  5. Serasa score at least 550, no active defaults
func (s *BrazilStrategy) Evaluate(input EvaluationInput) Assessment {
	var reasons []string
	riskScore := decimal.Zero
	decision := domain.RecommendationApprove

	if input.MonthlyIncome.LessThan(s.rules.MinIncome) {
		reasons = append(reasons, fmt.Sprintf(
			"Monthly income (R$ %s) below minimum (R$ %s)",
			input.MonthlyIncome.StringFixed(2), s.rules.MinIncome.StringFixed(2)))
		riskScore = riskScore.Add(penaltyLowIncome)
		decision = domain.RecommendationReject
	}

	if input.RequestedAmount.GreaterThan(s.rules.MaxLoanAmount) {
		reasons = append(reasons, fmt.Sprintf(
			"Requested amount (R$ %s) exceeds maximum (R$ %s)",
			input.RequestedAmount.StringFixed(2), s.rules.MaxLoanAmount.StringFixed(2)))
		riskScore = riskScore.Add(penaltyHighDebt)
		decision = domain.RecommendationReject
	}

	annualIncome := input.MonthlyIncome.Mul(monthsPerYear)
	loanToIncome := hundredPercent
	if annualIncome.IsPositive() && annualIncome.Abs().GreaterThanOrEqual(domain.MinAmount) {
		loanToIncome = input.RequestedAmount.Div(annualIncome)
	}
	if loanToIncome.GreaterThan(s.rules.MaxLoanToIncomeRatio) {
		reasons = append(reasons, fmt.Sprintf(
			"Loan-to-income ratio (%sx) exceeds maximum (%sx annual income)",
			loanToIncome.StringFixed(2), s.rules.MaxLoanToIncomeRatio.String()))
		riskScore = riskScore.Add(penaltyHighAmount)
		decision = domain.RecommendationReject
	}

	if input.Banking.MonthlyObligations != nil && input.Banking.MonthlyObligations.IsPositive() {
		newPayment := input.RequestedAmount.Div(shortLoanTerm)
		totalObligations := input.Banking.MonthlyObligations.Add(newPayment)
		dti := debtToIncomeRatio(input.MonthlyIncome, totalObligations)
		if dti.GreaterThan(s.rules.MaxDebtToIncomePct) {
			reasons = append(reasons, fmt.Sprintf(
				"Debt-to-income ratio (%s%%) exceeds maximum (%s%%)",
				dti.StringFixed(1), s.rules.MaxDebtToIncomePct.String()))
			riskScore = riskScore.Add(penaltyHighDebt)
			if decision == domain.RecommendationApprove {
				decision = domain.RecommendationReview
			}
		}
	}

	if input.Banking.CreditScore != nil && *input.Banking.CreditScore < s.rules.MinCreditScore {
		reasons = append(reasons, fmt.Sprintf(
			"Credit score (%d) below minimum (%d)",
			*input.Banking.CreditScore, s.rules.MinCreditScore))
		riskScore = riskScore.Add(penaltyHighAmount)
		decision = domain.RecommendationReject
	}

	if input.Banking.HasDefaults {
		reasons = append(reasons, "Applicant has active defaults")
		riskScore = riskScore.Add(penaltyLowIncome)
		decision = domain.RecommendationReject
	}

	if input.Banking.CreditScore != nil && *input.Banking.CreditScore >= goodScoreThreshold {
		riskScore = decimal.Max(decimal.Zero, riskScore.Sub(adjustGoodCredit))
	}
	if age, ok := accountAgeMonths(input.Banking.AdditionalData); ok && age >= 24 {
		riskScore = decimal.Max(decimal.Zero, riskScore.Sub(adjustAccountAgeBR))
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
