// Package provider defines the banking provider boundary.
//
// Providers are remote credit bureaus looked up per country. Calls go
// through the Gateway, which adds the per-provider timeout, the circuit
// breaker, and the conservative fallback artifact when the circuit is open.
package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// BankingData is the provider response consumed by the country strategies.
type BankingData struct {
	ProviderName       string                 `json:"provider_name"`
	AccountStatus      string                 `json:"account_status"`
	CreditScore        *int                   `json:"credit_score"`
	TotalDebt          *decimal.Decimal       `json:"total_debt"`
	MonthlyObligations *decimal.Decimal       `json:"monthly_obligations"`
	HasDefaults        bool                   `json:"has_defaults"`
	AdditionalData     map[string]interface{} `json:"additional_data"`
}

// IsFallback reports whether this artifact was synthesized by the gateway
// while the breaker was open.
func (b BankingData) IsFallback() bool {
	if b.AdditionalData == nil {
		return false
	}
	fallback, _ := b.AdditionalData["fallback"].(bool)
	return fallback
}

// ToDocument flattens the banking data for the JSONB column. Decimals
// travel as strings so fixed-point precision survives storage.
func (b BankingData) ToDocument() map[string]interface{} {
	doc := map[string]interface{}{
		"provider_name":  b.ProviderName,
		"account_status": b.AccountStatus,
		"has_defaults":   b.HasDefaults,
	}
	if b.CreditScore != nil {
		doc["credit_score"] = *b.CreditScore
	}
	if b.TotalDebt != nil {
		doc["total_debt"] = b.TotalDebt.StringFixed(2)
	}
	if b.MonthlyObligations != nil {
		doc["monthly_obligations"] = b.MonthlyObligations.StringFixed(2)
	}
	if len(b.AdditionalData) > 0 {
		doc["additional_data"] = b.AdditionalData
	}
	return doc
}

// BankingProvider fetches banking data for one country's applicants.
type BankingProvider interface {
	// Name returns the provider display name used in breaker keys, metrics
	// and stored banking data.
	Name() string

	// FetchBankingData retrieves the applicant's credit profile.
	FetchBankingData(ctx context.Context, document, fullName string) (BankingData, error)
}
