package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/breaker"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
)

// Conservative fallback artifact returned while the circuit is open. The
// values land between every country's approve and reject thresholds so the
// downstream evaluation tends toward UNDER_REVIEW instead of a hard
// decision on synthetic data.
var (
	fallbackCreditScore        = 500
	fallbackTotalDebt          = decimal.RequireFromString("50000.00")
	fallbackMonthlyObligations = decimal.RequireFromString("2000.00")
)

// Gateway wraps provider calls with timeout, circuit breaker, and fallback.
type Gateway struct {
	breakers *breaker.Registry
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewGateway creates the provider gateway. metrics may be nil in tests.
func NewGateway(breakers *breaker.Registry, m *metrics.Metrics, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{breakers: breakers, metrics: m, timeout: timeout}
}

// Fetch calls the provider under the (country, provider) breaker.
//
// Outcomes:
//   - provider success: real data, nil error
//   - circuit open: fallback artifact, nil error (not a failure)
//   - provider failure with circuit closed: transient ProviderUnavailable /
//     NetworkTimeout error for the retry policy
func (g *Gateway) Fetch(ctx context.Context, country domain.CountryCode, prov BankingProvider, document, fullName string) (BankingData, error) {
	key := breaker.Key{Country: string(country), Provider: prov.Name()}

	var data BankingData
	shortCircuited, err := g.breakers.Execute(key, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		fetched, fetchErr := prov.FetchBankingData(callCtx, document, fullName)
		if fetchErr != nil {
			return fetchErr
		}
		data = fetched
		return nil
	})

	if shortCircuited {
		logger.Warn("Circuit open, using fallback banking data",
			zap.String("country", string(country)),
			zap.String("provider", prov.Name()),
			zap.String("document", domain.MaskDocument(document)),
		)
		g.countRequest(key, "fallback")
		return Fallback(prov.Name()), nil
	}

	if err != nil {
		g.countRequest(key, "failure")
		if errors.Is(err, context.DeadlineExceeded) {
			return BankingData{}, apperrors.Transient(apperrors.KindNetworkTimeout, err,
				"provider %s timed out after %s", prov.Name(), g.timeout)
		}
		return BankingData{}, apperrors.Transient(apperrors.KindProviderUnavailable, err,
			"provider %s call failed", prov.Name())
	}

	g.countRequest(key, "success")
	return data, nil
}

// Snapshot exposes the breaker state for a (country, provider) pair.
func (g *Gateway) Snapshot(country domain.CountryCode, providerName string) breaker.State {
	return g.breakers.Snapshot(breaker.Key{Country: string(country), Provider: providerName})
}

func (g *Gateway) countRequest(key breaker.Key, status string) {
	if g.metrics != nil {
		g.metrics.ProviderRequests.WithLabelValues(key.Country, key.Provider, status).Inc()
	}
}

// Fallback builds the conservative artifact for providerName.
func Fallback(providerName string) BankingData {
	score := fallbackCreditScore
	totalDebt := fallbackTotalDebt
	monthlyObligations := fallbackMonthlyObligations
	return BankingData{
		ProviderName:       providerName + " (FALLBACK - Circuit Open)",
		AccountStatus:      "active",
		CreditScore:        &score,
		TotalDebt:          &totalDebt,
		MonthlyObligations: &monthlyObligations,
		HasDefaults:        false,
		AdditionalData: map[string]interface{}{
			"fallback": true,
			"reason":   "circuit breaker open - provider unavailable",
		},
	}
}
