package breaker

import (
	"sync"

	"go.uber.org/zap"

	"credit-core.io/creditcore/internal/pkg/logger"
	"credit-core.io/creditcore/internal/pkg/metrics"
)

// Key identifies one breaker: breakers are isolated per country and provider.
type Key struct {
	Country  string
	Provider string
}

// Registry owns all breaker instances for the process.
type Registry struct {
	settings Settings
	metrics  *metrics.Metrics

	mu       sync.Mutex
	breakers map[Key]*Breaker
}

// NewRegistry creates a registry. metrics may be nil (tests).
func NewRegistry(settings Settings, m *metrics.Metrics) *Registry {
	return &Registry{
		settings: settings.withDefaults(),
		metrics:  m,
		breakers: make(map[Key]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key Key) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}

	settings := r.settings
	settings.OnStateChange = func(from, to State) {
		logger.Warn("Circuit breaker state change",
			zap.String("country", key.Country),
			zap.String("provider", key.Provider),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if r.metrics != nil {
			r.metrics.BreakerState.WithLabelValues(key.Country, key.Provider).Set(float64(to))
		}
	}

	b := New(settings)
	r.breakers[key] = b
	return b
}

// Execute runs fn under the breaker for key and reports whether the call was
// short-circuited by an open circuit.
func (r *Registry) Execute(key Key, fn func() error) (shortCircuited bool, err error) {
	b := r.Get(key)
	err = b.Execute(fn)
	if err == ErrOpen {
		if r.metrics != nil {
			r.metrics.CircuitOpenTotal.WithLabelValues(key.Country, key.Provider).Inc()
		}
		return true, err
	}
	return false, err
}

// ForceOpen opens the breaker for key.
func (r *Registry) ForceOpen(key Key) {
	r.Get(key).ForceOpen()
}

// ForceClose closes the breaker for key.
func (r *Registry) ForceClose(key Key) {
	r.Get(key).ForceClose()
}

// Snapshot returns the state of the breaker for key.
func (r *Registry) Snapshot(key Key) State {
	return r.Get(key).Snapshot()
}
