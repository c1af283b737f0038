package provider

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"credit-core.io/creditcore/internal/domain"
)

// Provider display names by country.
var providerNames = map[domain.CountryCode]string{
	domain.CountrySpain:    "Spanish Banking Provider",
	domain.CountryPortugal: "Portuguese Banking Provider",
	domain.CountryItaly:    "Italian Banking Provider",
	domain.CountryMexico:   "Mexican Banking Provider (Buró de Crédito)",
	domain.CountryColombia: "Colombian Banking Provider (DataCrédito)",
	domain.CountryBrazil:   "Brazilian Banking Provider (Serasa)",
}

// ProviderNameFor returns the display name of the provider serving country.
func ProviderNameFor(country domain.CountryCode) string {
	return providerNames[country]
}

// MockProvider generates deterministic banking data keyed on the document
// number, so the same applicant yields the same profile on every call.
// It stands in for the real bureau integrations in development and tests.
type MockProvider struct {
	country domain.CountryCode
	name    string
}

// NewMockProvider creates the mock bureau for country.
func NewMockProvider(country domain.CountryCode) *MockProvider {
	return &MockProvider{country: country, name: providerNames[country]}
}

// Name implements BankingProvider.
func (p *MockProvider) Name() string { return p.name }

// Credit score scales: Brazil uses Serasa's 0-1000 range, everyone else a
// FICO-like 300-850.
const (
	intlScoreFloor = 500
	intlScoreMax   = 850
	serasaScoreMax = 1000
)

// FetchBankingData implements BankingProvider with hash-seeded values.
func (p *MockProvider) FetchBankingData(ctx context.Context, document, fullName string) (BankingData, error) {
	if err := ctx.Err(); err != nil {
		return BankingData{}, err
	}

	hash := documentHash(document)

	var score int
	switch p.country {
	case domain.CountryBrazil:
		score = 300 + hash%(serasaScoreMax-300)
	default:
		score = intlScoreFloor + hash%(intlScoreMax-intlScoreFloor)
	}

	totalDebt := decimal.NewFromInt(int64(hash % 30000))
	monthlyObligations := totalDebt.Div(decimal.NewFromInt(36)).Round(2)
	accountAgeMonths := 6 + hash%120

	return BankingData{
		ProviderName:       p.name,
		AccountStatus:      "active",
		CreditScore:        &score,
		TotalDebt:          &totalDebt,
		MonthlyObligations: &monthlyObligations,
		HasDefaults:        hash%10 == 0,
		AdditionalData: map[string]interface{}{
			"account_age_months": accountAgeMonths,
			"data_source":        strings.ToLower(string(p.country)) + "_banking_provider_mock",
		},
	}, nil
}

// documentHash folds a document into a stable small integer. Separator
// characters are ignored so formatted and bare documents hash alike.
func documentHash(document string) int {
	sum := 0
	for _, r := range document {
		if r == ' ' || r == '-' || r == '.' {
			continue
		}
		sum += int(r)
	}
	return sum
}

// NewRegistry builds the per-country provider table used at process start.
func NewRegistry() map[domain.CountryCode]BankingProvider {
	table := make(map[domain.CountryCode]BankingProvider, len(providerNames))
	for country := range providerNames {
		table[country] = NewMockProvider(country)
	}
	return table
}
