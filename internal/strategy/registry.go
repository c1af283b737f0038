package strategy

import (
	"credit-core.io/creditcore/internal/domain"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
)

// Registry is the immutable country → strategy table, built once at process
// start.
type Registry struct {
	strategies map[domain.CountryCode]Strategy
}

// NewRegistry builds the strategy table from the rule set.
func NewRegistry(rules map[domain.CountryCode]Rules) *Registry {
	return &Registry{
		strategies: map[domain.CountryCode]Strategy{
			domain.CountrySpain:    &SpainStrategy{rules: rules[domain.CountrySpain]},
			domain.CountryPortugal: &PortugalStrategy{rules: rules[domain.CountryPortugal]},
			domain.CountryItaly:    &ItalyStrategy{rules: rules[domain.CountryItaly]},
			domain.CountryMexico:   &MexicoStrategy{rules: rules[domain.CountryMexico]},
			domain.CountryColombia: &ColombiaStrategy{rules: rules[domain.CountryColombia]},
			domain.CountryBrazil:   &BrazilStrategy{rules: rules[domain.CountryBrazil]},
		},
	}
}

// ForCountry looks up the strategy for country. An unknown country is a
// permanent UnsupportedCountry error: retrying cannot make a country
// supported.
func (r *Registry) ForCountry(country domain.CountryCode) (Strategy, error) {
	s, ok := r.strategies[country]
	if !ok {
		return nil, apperrors.Permanent(apperrors.KindUnsupportedCountry,
			"country %q is not supported", country)
	}
	return s, nil
}

// SupportedCountries lists the registered country codes.
func (r *Registry) SupportedCountries() []domain.CountryCode {
	countries := make([]domain.CountryCode, 0, len(r.strategies))
	for _, c := range domain.SupportedCountries {
		if _, ok := r.strategies[c]; ok {
			countries = append(countries, c)
		}
	}
	return countries
}
