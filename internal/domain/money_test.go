package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"typical amount", "15000.00", false},
		{"minimum", "0.01", false},
		{"maximum storable", "9999999999.99", false},
		{"no decimals", "15000", false},
		{"one decimal", "15000.5", false},
		{"zero", "0.00", true},
		{"negative", "-1.00", true},
		{"precision overflow", "10000000000.00", true},
		{"three decimal places", "100.123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount("requested_amount", dec(tt.value))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%s) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAmount_RoundTripExactness(t *testing.T) {
	// The value that reads back must equal the exact input: the decimal type
	// carries an integer mantissa and scale, never a binary float.
	in := dec("3500.10")
	if err := ValidateAmount("monthly_income", in); err != nil {
		t.Fatalf("ValidateAmount() error = %v", err)
	}
	if got := in.StringFixed(2); got != "3500.10" {
		t.Errorf("StringFixed = %s, want 3500.10", got)
	}
	if !in.Equal(dec("3500.1")) {
		t.Error("decimal equality must be value-based, not representation-based")
	}
}

func TestValidateRiskScore(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"0", false},
		{"100", false},
		{"55.25", false},
		{"-0.01", true},
		{"100.01", true},
		{"10.123", true},
	}

	for _, tt := range tests {
		err := ValidateRiskScore(dec(tt.value))
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRiskScore(%s) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestClampRiskScore(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-10", "0"},
		{"150", "100"},
		{"42.555", "42.56"},
		{"10", "10"},
	}

	for _, tt := range tests {
		if got := ClampRiskScore(dec(tt.in)); !got.Equal(dec(tt.want)) {
			t.Errorf("ClampRiskScore(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		score string
		want  RiskLevel
	}{
		{"0", RiskLow},
		{"29.99", RiskLow},
		{"30", RiskMedium},
		{"49.99", RiskMedium},
		{"50", RiskHigh},
		{"69.99", RiskHigh},
		{"70", RiskCritical},
		{"100", RiskCritical},
	}

	for _, tt := range tests {
		if got := RiskLevelFor(dec(tt.score)); got != tt.want {
			t.Errorf("RiskLevelFor(%s) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestMaskDocument(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12345678Z", "*****678Z"},
		{"123", "****"},
		{"", "****"},
		{"  12345678Z  ", "*****678Z"},
	}
	for _, tt := range tests {
		if got := MaskDocument(tt.in); got != tt.want {
			t.Errorf("MaskDocument(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsActive(t *testing.T) {
	app := &Application{Status: StatusPending}
	if !app.IsActive() {
		t.Error("PENDING application should be active")
	}

	app.Status = StatusApproved
	if !app.IsActive() {
		t.Error("APPROVED application should be active")
	}

	for _, s := range []ApplicationStatus{StatusCancelled, StatusRejected, StatusCompleted} {
		app.Status = s
		if app.IsActive() {
			t.Errorf("%s application should not be active", s)
		}
	}

	now := app.CreatedAt
	app.Status = StatusPending
	app.DeletedAt = &now
	if app.IsActive() {
		t.Error("soft-deleted application should not be active")
	}
}
