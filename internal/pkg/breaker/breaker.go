// Package breaker implements the per-provider circuit breaker.
//
// One breaker exists per (country, provider) key, owned by the Registry.
// Breaker state is process-local on purpose: the failure it protects
// against (a provider outage) is itself cluster-wide, so independent local
// detection converges quickly without cross-process coordination.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state. Values match the exported metric encoding.
type State int

const (
	StateClosed   State = 0
	StateOpen     State = 1
	StateHalfOpen State = 2
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrOpen is returned when a call is short-circuited by an open breaker.
var ErrOpen = errors.New("circuit breaker is open")

// Default breaker parameters.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// Settings configures a breaker instance.
type Settings struct {
	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before admitting a probe.
	RecoveryTimeout time.Duration

	// IsFailure decides whether an error counts against the circuit.
	// nil means every non-nil error counts.
	IsFailure func(error) bool

	// OnStateChange is invoked after the breaker lock is released on every
	// transition.
	OnStateChange func(from, to State)

	// now is injectable for tests.
	now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Breaker is a single circuit breaker instance.
type Breaker struct {
	settings Settings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a breaker in the closed state.
func New(settings Settings) *Breaker {
	return &Breaker{settings: settings.withDefaults()}
}

// Execute runs fn under the breaker.
//
// An open circuit within the recovery window short-circuits with ErrOpen in
// bounded time without invoking fn. After the window, exactly one probe call
// is admitted; concurrent callers during the probe still receive ErrOpen.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	b.afterCall(b.settings.IsFailure(err))
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.settings.now().Sub(b.openedAt) < b.settings.RecoveryTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		notify := b.transitionLocked(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		notify()
		return nil
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
		b.mu.Unlock()
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) afterCall(failed bool) {
	b.mu.Lock()
	notify := noNotify

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.openedAt = b.settings.now()
			notify = b.transitionLocked(StateOpen)
		} else {
			b.failures = 0
			notify = b.transitionLocked(StateClosed)
		}
	case StateClosed:
		if failed {
			b.failures++
			if b.failures >= b.settings.FailureThreshold {
				b.openedAt = b.settings.now()
				notify = b.transitionLocked(StateOpen)
			}
		} else {
			b.failures = 0
		}
	}

	b.mu.Unlock()
	notify()
}

// ForceOpen opens the circuit immediately, restarting the recovery window.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	b.openedAt = b.settings.now()
	b.probing = false
	notify := b.transitionLocked(StateOpen)
	b.mu.Unlock()
	notify()
}

// ForceClose closes the circuit and resets the failure count.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	notify := b.transitionLocked(StateClosed)
	b.mu.Unlock()
	notify()
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func noNotify() {}

// transitionLocked changes state and returns the deferred change callback.
// Caller holds b.mu and must invoke the returned func after unlocking.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	if from == to {
		return noNotify
	}
	b.state = to
	if cb := b.settings.OnStateChange; cb != nil {
		return func() { cb(from, to) }
	}
	return noNotify
}
