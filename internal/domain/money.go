package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Monetary precision: NUMERIC(12,2) — 10 integer digits, 2 fractional.
// Risk scores: NUMERIC(5,2).
const (
	amountScale    = 2
	riskScoreScale = 2
)

var (
	// MaxAmount is the largest storable monetary value (9 999 999 999.99).
	MaxAmount = decimal.RequireFromString("9999999999.99")

	// MinAmount is the smallest accepted monetary input.
	MinAmount = decimal.RequireFromString("0.01")

	maxRiskScore = decimal.NewFromInt(100)
)

// ValidateAmount checks that value fits NUMERIC(12,2) without rounding.
// Monetary values are exact fixed-point; a value with more than two decimal
// places is rejected rather than silently rounded.
func ValidateAmount(field string, value decimal.Decimal) error {
	if value.Exponent() < -amountScale {
		return fmt.Errorf("%s has more than %d decimal places: %s", field, amountScale, value.String())
	}
	if value.LessThan(MinAmount) {
		return fmt.Errorf("%s must be at least %s: %s", field, MinAmount.String(), value.String())
	}
	if value.GreaterThan(MaxAmount) {
		return fmt.Errorf("%s exceeds maximum storable value %s: %s", field, MaxAmount.String(), value.String())
	}
	return nil
}

// ValidateRiskScore checks that value fits NUMERIC(5,2) in [0, 100].
func ValidateRiskScore(value decimal.Decimal) error {
	if value.Exponent() < -riskScoreScale {
		return fmt.Errorf("risk score has more than %d decimal places: %s", riskScoreScale, value.String())
	}
	if value.IsNegative() || value.GreaterThan(maxRiskScore) {
		return fmt.Errorf("risk score out of range [0, 100]: %s", value.String())
	}
	return nil
}

// ClampRiskScore bounds a computed score into [0, 100] at scale 2.
func ClampRiskScore(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimal.Zero
	}
	if value.GreaterThan(maxRiskScore) {
		return maxRiskScore
	}
	return value.Round(riskScoreScale)
}
