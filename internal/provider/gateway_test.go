package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"credit-core.io/creditcore/internal/domain"
	"credit-core.io/creditcore/internal/pkg/breaker"
	apperrors "credit-core.io/creditcore/internal/pkg/errors"
	"credit-core.io/creditcore/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

// flakyProvider fails until healthy is flipped.
type flakyProvider struct {
	name    string
	healthy bool
	calls   int
	delay   time.Duration
}

func (p *flakyProvider) Name() string { return p.name }

func (p *flakyProvider) FetchBankingData(ctx context.Context, document, fullName string) (BankingData, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return BankingData{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if !p.healthy {
		return BankingData{}, errors.New("connection refused")
	}
	score := 720
	return BankingData{ProviderName: p.name, AccountStatus: "active", CreditScore: &score}, nil
}

func newTestGateway(threshold int) (*Gateway, *breaker.Registry) {
	registry := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
	}, nil)
	return NewGateway(registry, nil, time.Second), registry
}

func TestGateway_Success(t *testing.T) {
	gw, _ := newTestGateway(5)
	prov := &flakyProvider{name: "Spanish Banking Provider", healthy: true}

	data, err := gw.Fetch(context.Background(), domain.CountrySpain, prov, "12345678Z", "Juan García López")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if data.IsFallback() {
		t.Error("healthy provider must not yield fallback data")
	}
	if data.CreditScore == nil || *data.CreditScore != 720 {
		t.Errorf("credit score = %v, want 720", data.CreditScore)
	}
}

func TestGateway_FailureIsTransient(t *testing.T) {
	gw, _ := newTestGateway(5)
	prov := &flakyProvider{name: "Spanish Banking Provider"}

	_, err := gw.Fetch(context.Background(), domain.CountrySpain, prov, "12345678Z", "Juan García López")
	if err == nil {
		t.Fatal("Fetch() from failing provider with closed circuit must error")
	}
	proc := apperrors.ClassifyProcessing(err)
	if proc.Kind != apperrors.KindProviderUnavailable {
		t.Errorf("kind = %s, want ProviderUnavailable", proc.Kind)
	}
	if !proc.Kind.IsRetryable() {
		t.Error("provider failure must be retryable")
	}
}

func TestGateway_OpenCircuitYieldsFallback(t *testing.T) {
	gw, _ := newTestGateway(5)
	prov := &flakyProvider{name: "Spanish Banking Provider"}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = gw.Fetch(ctx, domain.CountrySpain, prov, "12345678Z", "Juan García López")
	}
	if got := gw.Snapshot(domain.CountrySpain, prov.Name()); got != breaker.StateOpen {
		t.Fatalf("breaker state = %v, want open after threshold failures", got)
	}

	callsBefore := prov.calls
	start := time.Now()
	data, err := gw.Fetch(ctx, domain.CountrySpain, prov, "12345678Z", "Juan García López")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Fetch() with open circuit error = %v, want fallback", err)
	}
	if prov.calls != callsBefore {
		t.Error("open circuit must not invoke the provider")
	}
	if elapsed > 5*time.Millisecond {
		t.Errorf("short-circuit took %s, want bounded time", elapsed)
	}
	if !data.IsFallback() {
		t.Fatal("open circuit must yield the fallback artifact")
	}
	if data.CreditScore == nil || *data.CreditScore != 500 {
		t.Errorf("fallback credit score = %v, want 500", data.CreditScore)
	}
	if data.TotalDebt == nil || data.TotalDebt.StringFixed(2) != "50000.00" {
		t.Errorf("fallback total debt = %v, want 50000.00", data.TotalDebt)
	}
	if data.MonthlyObligations == nil || data.MonthlyObligations.StringFixed(2) != "2000.00" {
		t.Errorf("fallback monthly obligations = %v, want 2000.00", data.MonthlyObligations)
	}
	if data.HasDefaults {
		t.Error("fallback must not report defaults")
	}
}

func TestGateway_RecoveryAfterOutage(t *testing.T) {
	registry := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
	}, nil)
	gw := NewGateway(registry, nil, time.Second)
	prov := &flakyProvider{name: "Spanish Banking Provider"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = gw.Fetch(ctx, domain.CountrySpain, prov, "12345678Z", "x")
	}

	prov.healthy = true
	time.Sleep(60 * time.Millisecond)

	data, err := gw.Fetch(ctx, domain.CountrySpain, prov, "12345678Z", "x")
	if err != nil {
		t.Fatalf("probe Fetch() error = %v", err)
	}
	if data.IsFallback() {
		t.Error("recovered provider must yield real data")
	}
	if got := gw.Snapshot(domain.CountrySpain, prov.Name()); got != breaker.StateClosed {
		t.Errorf("breaker state = %v, want closed after recovery", got)
	}
}

func TestGateway_TimeoutClassification(t *testing.T) {
	registry := breaker.NewRegistry(breaker.Settings{FailureThreshold: 5, RecoveryTimeout: time.Minute}, nil)
	gw := NewGateway(registry, nil, 20*time.Millisecond)
	prov := &flakyProvider{name: "slow", healthy: true, delay: 200 * time.Millisecond}

	_, err := gw.Fetch(context.Background(), domain.CountrySpain, prov, "12345678Z", "x")
	if err == nil {
		t.Fatal("Fetch() against slow provider should time out")
	}
	if kind := apperrors.ClassifyProcessing(err).Kind; kind != apperrors.KindNetworkTimeout {
		t.Errorf("kind = %s, want NetworkTimeout", kind)
	}
}

func TestMockProvider_Deterministic(t *testing.T) {
	prov := NewMockProvider(domain.CountrySpain)
	ctx := context.Background()

	a, err := prov.FetchBankingData(ctx, "12345678Z", "Juan García López")
	if err != nil {
		t.Fatalf("FetchBankingData() error = %v", err)
	}
	b, _ := prov.FetchBankingData(ctx, "12345678Z", "Juan García López")

	if *a.CreditScore != *b.CreditScore || !a.TotalDebt.Equal(*b.TotalDebt) {
		t.Error("mock provider must be deterministic per document")
	}

	// Separators are ignored.
	c, _ := prov.FetchBankingData(ctx, "12345678-Z", "Juan García López")
	if *a.CreditScore != *c.CreditScore {
		t.Error("separator characters must not change the profile")
	}
}

func TestNewRegistry_CoversAllCountries(t *testing.T) {
	table := NewRegistry()
	for _, country := range domain.SupportedCountries {
		prov, ok := table[country]
		if !ok {
			t.Errorf("registry missing provider for %s", country)
			continue
		}
		if prov.Name() == "" {
			t.Errorf("provider for %s has empty name", country)
		}
	}
}
