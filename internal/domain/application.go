// Package domain provides domain models for Credit Core.
//
// The persistence layer returns these DTOs directly; there is no lazy
// loading and every fetch is explicit.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApplicationStatus is the application lifecycle status.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "PENDING"
	StatusValidating  ApplicationStatus = "VALIDATING"
	StatusApproved    ApplicationStatus = "APPROVED"
	StatusRejected    ApplicationStatus = "REJECTED"
	StatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	StatusCompleted   ApplicationStatus = "COMPLETED"
	StatusCancelled   ApplicationStatus = "CANCELLED"
)

// AllStatuses lists every status value.
var AllStatuses = []ApplicationStatus{
	StatusPending,
	StatusValidating,
	StatusApproved,
	StatusRejected,
	StatusUnderReview,
	StatusCompleted,
	StatusCancelled,
}

// CountryCode is an ISO 3166-1 alpha-2 country code from the closed set of
// supported markets.
type CountryCode string

const (
	CountrySpain    CountryCode = "ES"
	CountryPortugal CountryCode = "PT"
	CountryItaly    CountryCode = "IT"
	CountryMexico   CountryCode = "MX"
	CountryColombia CountryCode = "CO"
	CountryBrazil   CountryCode = "BR"
)

// SupportedCountries lists the closed set of supported country codes.
var SupportedCountries = []CountryCode{
	CountrySpain,
	CountryPortugal,
	CountryItaly,
	CountryMexico,
	CountryColombia,
	CountryBrazil,
}

// CountryCurrency maps each country to its canonical ISO-4217 currency.
var CountryCurrency = map[CountryCode]string{
	CountrySpain:    "EUR",
	CountryPortugal: "EUR",
	CountryItaly:    "EUR",
	CountryBrazil:   "BRL",
	CountryMexico:   "MXN",
	CountryColombia: "COP",
}

// DocumentTypes maps each country to its identity document type name.
var DocumentTypes = map[CountryCode]string{
	CountrySpain:    "DNI",
	CountryPortugal: "NIF",
	CountryItaly:    "Codice Fiscale",
	CountryMexico:   "CURP",
	CountryColombia: "Cédula",
	CountryBrazil:   "CPF",
}

// IsSupportedCountry reports whether code is in the closed country set.
func IsSupportedCountry(code CountryCode) bool {
	_, ok := CountryCurrency[code]
	return ok
}

// Application is the credit application row. FullName and IdentityDocument
// hold ciphertext; the plaintext surfaces only through the API response
// helper.
type Application struct {
	ID                  uuid.UUID
	Country             CountryCode
	FullName            []byte
	IdentityDocument    []byte
	RequestedAmount     decimal.Decimal
	MonthlyIncome       decimal.Decimal
	Currency            string
	IdempotencyKey      *string
	Status              ApplicationStatus
	CountrySpecificData map[string]interface{}
	BankingData         map[string]interface{}
	ValidationErrors    []string
	RiskScore           *decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// IsActive reports whether the application counts against the one-active-
// application-per-(country, document) invariant.
func (a *Application) IsActive() bool {
	if a.DeletedAt != nil {
		return false
	}
	switch a.Status {
	case StatusCancelled, StatusRejected, StatusCompleted:
		return false
	}
	return true
}

// AuditLog records one status change, written by the audit trigger.
type AuditLog struct {
	ID            uuid.UUID
	ApplicationID uuid.UUID
	OldStatus     *ApplicationStatus
	NewStatus     ApplicationStatus
	ChangedBy     string
	ChangeReason  *string
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}

// RiskLevel classifies a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Risk level thresholds on the 0–100 score scale.
var (
	riskMediumThreshold   = decimal.NewFromInt(30)
	riskHighThreshold     = decimal.NewFromInt(50)
	riskCriticalThreshold = decimal.NewFromInt(70)
)

// RiskLevelFor maps a risk score to its level.
func RiskLevelFor(score decimal.Decimal) RiskLevel {
	switch {
	case score.GreaterThanOrEqual(riskCriticalThreshold):
		return RiskCritical
	case score.GreaterThanOrEqual(riskHighThreshold):
		return RiskHigh
	case score.GreaterThanOrEqual(riskMediumThreshold):
		return RiskMedium
	default:
		return RiskLow
	}
}
