package strategy

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"credit-core.io/creditcore/internal/domain"
)

// Rules is one country's threshold table. Amounts are in the country's
// canonical currency.
type Rules struct {
	MinIncome            decimal.Decimal
	MaxLoanAmount        decimal.Decimal
	HighAmountThreshold  decimal.Decimal
	MaxDebtToIncomePct   decimal.Decimal
	MaxPaymentIncomePct  decimal.Decimal
	MinCreditScore       int
	MaxLoanToIncomeRatio decimal.Decimal
}

// DefaultRules returns the built-in threshold tables.
func DefaultRules() map[domain.CountryCode]Rules {
	return map[domain.CountryCode]Rules{
		domain.CountrySpain: {
			MinIncome:           decimal.RequireFromString("1500.00"),
			MaxLoanAmount:       decimal.RequireFromString("50000.00"),
			HighAmountThreshold: decimal.RequireFromString("20000.00"),
			MaxDebtToIncomePct:  decimal.RequireFromString("40.0"),
			MinCreditScore:      600,
		},
		domain.CountryPortugal: {
			MinIncome:            decimal.RequireFromString("800.00"),
			MaxLoanAmount:        decimal.RequireFromString("30000.00"),
			MaxDebtToIncomePct:   decimal.RequireFromString("40.0"),
			MinCreditScore:       600,
			MaxLoanToIncomeRatio: decimal.NewFromInt(4),
		},
		domain.CountryItaly: {
			MinIncome:          decimal.RequireFromString("1200.00"),
			MaxLoanAmount:      decimal.RequireFromString("50000.00"),
			MaxDebtToIncomePct: decimal.RequireFromString("35.0"),
			MinCreditScore:     600,
		},
		domain.CountryMexico: {
			MinIncome:            decimal.RequireFromString("5000.00"),
			MaxLoanAmount:        decimal.RequireFromString("200000.00"),
			MaxDebtToIncomePct:   decimal.RequireFromString("45.0"),
			MaxPaymentIncomePct:  decimal.RequireFromString("30.0"),
			MinCreditScore:       550,
			MaxLoanToIncomeRatio: decimal.NewFromInt(3),
		},
		domain.CountryColombia: {
			MinIncome:           decimal.RequireFromString("1500000.00"),
			MaxLoanAmount:       decimal.RequireFromString("50000000.00"),
			MaxPaymentIncomePct: decimal.RequireFromString("40.0"),
			MinCreditScore:      600,
		},
		domain.CountryBrazil: {
			MinIncome:            decimal.RequireFromString("2000.00"),
			MaxLoanAmount:        decimal.RequireFromString("100000.00"),
			MaxDebtToIncomePct:   decimal.RequireFromString("35.0"),
			MinCreditScore:       550,
			MaxLoanToIncomeRatio: decimal.RequireFromString("5.0"),
		},
	}
}

// rulesFile is the YAML shape for threshold overrides.
type rulesFile struct {
	Countries map[string]rulesEntry `yaml:"countries"`
}

type rulesEntry struct {
	MinIncome            string `yaml:"min_income"`
	MaxLoanAmount        string `yaml:"max_loan_amount"`
	HighAmountThreshold  string `yaml:"high_amount_threshold"`
	MaxDebtToIncomePct   string `yaml:"max_debt_to_income_pct"`
	MaxPaymentIncomePct  string `yaml:"max_payment_income_pct"`
	MinCreditScore       *int   `yaml:"min_credit_score"`
	MaxLoanToIncomeRatio string `yaml:"max_loan_to_income_ratio"`
}

// LoadRules returns the default tables merged with overrides from path.
// Empty path means defaults only. Unknown countries in the file are
// rejected; partial entries override only the named fields.
func LoadRules(path string) (map[domain.CountryCode]Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	for code, entry := range file.Countries {
		country := domain.CountryCode(code)
		current, ok := rules[country]
		if !ok {
			return nil, fmt.Errorf("rules file references unsupported country %q", code)
		}
		if err := applyOverride(&current, entry); err != nil {
			return nil, fmt.Errorf("rules for %s: %w", code, err)
		}
		rules[country] = current
	}

	return rules, nil
}

func applyOverride(rules *Rules, entry rulesEntry) error {
	set := func(dst *decimal.Decimal, raw, field string) error {
		if raw == "" {
			return nil
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, raw, err)
		}
		*dst = value
		return nil
	}

	if err := set(&rules.MinIncome, entry.MinIncome, "min_income"); err != nil {
		return err
	}
	if err := set(&rules.MaxLoanAmount, entry.MaxLoanAmount, "max_loan_amount"); err != nil {
		return err
	}
	if err := set(&rules.HighAmountThreshold, entry.HighAmountThreshold, "high_amount_threshold"); err != nil {
		return err
	}
	if err := set(&rules.MaxDebtToIncomePct, entry.MaxDebtToIncomePct, "max_debt_to_income_pct"); err != nil {
		return err
	}
	if err := set(&rules.MaxPaymentIncomePct, entry.MaxPaymentIncomePct, "max_payment_income_pct"); err != nil {
		return err
	}
	if err := set(&rules.MaxLoanToIncomeRatio, entry.MaxLoanToIncomeRatio, "max_loan_to_income_ratio"); err != nil {
		return err
	}
	if entry.MinCreditScore != nil {
		rules.MinCreditScore = *entry.MinCreditScore
	}
	return nil
}
