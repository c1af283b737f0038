package strategy

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/provider"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func writeFile(path string, content []byte) error {
	return os.WriteFile(path, content, 0o600)
}

func banking(score int, obligations string, hasDefaults bool) provider.BankingData {
	obl := money(obligations)
	debt := obl.Mul(decimal.NewFromInt(36))
	return provider.BankingData{
		ProviderName:       "test",
		AccountStatus:      "active",
		CreditScore:        &score,
		TotalDebt:          &debt,
		MonthlyObligations: &obl,
		HasDefaults:        hasDefaults,
		AdditionalData:     map[string]interface{}{"account_age_months": 48},
	}
}

func TestSpain_Evaluate_HappyPath(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountrySpain)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("15000.00"),
		MonthlyIncome:   money("3500.00"),
		Banking:         banking(720, "200.00", false),
	})

	assert.Equal(t, domain.RecommendationApprove, got.Recommendation)
	assert.Equal(t, domain.RiskLow, got.RiskLevel)
	assert.False(t, got.RequiresReview)
}

func TestSpain_Evaluate_HardLimit(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountrySpain)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("50000.01"),
		MonthlyIncome:   money("10000.00"),
		Banking:         banking(800, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
	assert.Equal(t, domain.RiskCritical, got.RiskLevel)
	assert.True(t, got.RiskScore.Equal(money("100")))
}

func TestSpain_Evaluate_HighAmountNeedsReview(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountrySpain)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("25000.00"),
		MonthlyIncome:   money("4000.00"),
		Banking:         banking(650, "600.00", false),
	})

	// 25k exceeds the 20k threshold (+15) and sets the review flag; the
	// payment ratio stays sane, so the low score never reaches REJECT.
	assert.True(t, got.RequiresReview)
	assert.NotEqual(t, domain.RecommendationReject, got.Recommendation)
}

func TestSpain_Evaluate_FallbackDataLandsOnReview(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountrySpain)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("15000.00"),
		MonthlyIncome:   money("3500.00"),
		Banking:         provider.Fallback("Spanish Banking Provider"),
	})

	// Fallback score 500 (< 600) and obligations 2000 on 3500 income push
	// the score into the review band, never auto-approve.
	assert.Equal(t, domain.RecommendationReview, got.Recommendation)
}

func TestPortugal_Evaluate_LowIncome(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryPortugal)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("5000.00"),
		MonthlyIncome:   money("700.00"),
		Banking:         banking(650, "0.00", false),
	})

	require.NotEmpty(t, got.Reasons)
	assert.Contains(t, got.Reasons[0], "below minimum")
}

func TestPortugal_Evaluate_HardLimit(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryPortugal)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("30000.01"),
		MonthlyIncome:   money("5000.00"),
		Banking:         banking(700, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
	assert.Equal(t, domain.RiskCritical, got.RiskLevel)
}

func TestItaly_Evaluate_StabilityCheck(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryItaly)

	// 45k on 1.5k monthly: above 2 years of income (36k) → review flag.
	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("45000.00"),
		MonthlyIncome:   money("1500.00"),
		Banking:         banking(700, "0.00", false),
	})

	assert.True(t, got.RequiresReview)
}

func TestMexico_Evaluate_ComfortablePayment(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryMexico)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("50000.00"),
		MonthlyIncome:   money("20000.00"),
		Banking:         banking(720, "1000.00", false),
	})

	assert.Equal(t, domain.RecommendationApprove, got.Recommendation)
	assert.Equal(t, domain.RiskLow, got.RiskLevel)
}

func TestMexico_Evaluate_HardLimit(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryMexico)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("200000.01"),
		MonthlyIncome:   money("50000.00"),
		Banking:         banking(720, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
}

func TestColombia_Evaluate_RejectsOnHardRules(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryColombia)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("10000000.00"),
		MonthlyIncome:   money("1000000.00"), // below 1.5M minimum
		Banking:         banking(700, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
}

func TestColombia_Evaluate_CleanProfileApproves(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryColombia)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("10000000.00"),
		MonthlyIncome:   money("5000000.00"),
		Banking:         banking(720, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationApprove, got.Recommendation)
	// A clean approval still carries a non-zero floor score.
	assert.True(t, got.RiskScore.GreaterThanOrEqual(money("10")))
}

func TestBrazil_Evaluate_LoanToIncome(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryBrazil)

	// 100k loan on 1k/month (12k annual): ratio 8.3x exceeds 5x.
	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("100000.00"),
		MonthlyIncome:   money("1000.00"),
		Banking:         banking(700, "0.00", false),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
}

func TestBrazil_Evaluate_DTIYieldsReview(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryBrazil)

	// Clean profile except obligations pushing DTI above 35% (12-month term):
	// payment 12000/12=1000 + 500 obligations on 4000 income = 37.5%.
	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("12000.00"),
		MonthlyIncome:   money("4000.00"),
		Banking:         banking(700, "500.00", false),
	})

	assert.Equal(t, domain.RecommendationReview, got.Recommendation)
	assert.True(t, got.RequiresReview)
}

func TestBrazil_Evaluate_DefaultsReject(t *testing.T) {
	s := mustStrategy(t, testRegistry(t), domain.CountryBrazil)

	got := s.Evaluate(EvaluationInput{
		RequestedAmount: money("10000.00"),
		MonthlyIncome:   money("5000.00"),
		Banking:         banking(700, "100.00", true),
	})

	assert.Equal(t, domain.RecommendationReject, got.Recommendation)
}

func TestEvaluate_ZeroIncomeDoesNotPanic(t *testing.T) {
	r := testRegistry(t)
	for _, country := range domain.SupportedCountries {
		s := mustStrategy(t, r, country)
		got := s.Evaluate(EvaluationInput{
			RequestedAmount: money("1000.00"),
			MonthlyIncome:   money("0.00"),
			Banking:         banking(600, "100.00", false),
		})
		assert.NotEqual(t, domain.RecommendationApprove, got.Recommendation,
			"country %s approved a zero-income applicant", country)
	}
}

func TestLoadRules_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.yaml"
	content := []byte("countries:\n  ES:\n    max_loan_amount: \"60000.00\"\n    min_credit_score: 650\n")
	require.NoError(t, writeFile(path, content))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	es := rules[domain.CountrySpain]
	assert.True(t, es.MaxLoanAmount.Equal(money("60000.00")))
	assert.Equal(t, 650, es.MinCreditScore)
	// Untouched fields keep their defaults.
	assert.True(t, es.HighAmountThreshold.Equal(money("20000.00")))
	// Other countries untouched.
	assert.True(t, rules[domain.CountryBrazil].MaxLoanAmount.Equal(money("100000.00")))
}

func TestLoadRules_RejectsUnknownCountry(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rules.yaml"
	require.NoError(t, writeFile(path, []byte("countries:\n  XX:\n    min_credit_score: 1\n")))

	_, err := LoadRules(path)
	assert.Error(t, err)
}
