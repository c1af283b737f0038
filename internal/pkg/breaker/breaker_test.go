package breaker

import (
	"errors"
	"testing"
	"time"

	"credit-core.io/creditcore/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

var errProvider = errors.New("provider down")

// testBreaker returns a breaker with an adjustable clock.
func testBreaker(threshold int, recovery time.Duration) (*Breaker, *time.Time) {
	now := time.Unix(1700000000, 0)
	b := New(Settings{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		now:              func() time.Time { return now },
	})
	return b, &now
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errProvider })
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := testBreaker(5, time.Minute)

	failN(b, 4)
	if got := b.Snapshot(); got != StateClosed {
		t.Fatalf("state after 4 failures = %v, want closed", got)
	}

	failN(b, 1)
	if got := b.Snapshot(); got != StateOpen {
		t.Fatalf("state after 5 failures = %v, want open", got)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := testBreaker(5, time.Minute)

	failN(b, 4)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	failN(b, 4)
	if got := b.Snapshot(); got != StateClosed {
		t.Errorf("state = %v, want closed (count reset by success)", got)
	}
}

func TestBreaker_ShortCircuitsWhileOpen(t *testing.T) {
	b, _ := testBreaker(5, time.Minute)
	failN(b, 5)

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	if err != ErrOpen {
		t.Fatalf("Execute() error = %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("wrapped call must not be invoked while open")
	}
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b, now := testBreaker(5, time.Minute)
	failN(b, 5)

	*now = now.Add(61 * time.Second)

	invoked := false
	if err := b.Execute(func() error {
		invoked = true
		return nil
	}); err != nil {
		t.Fatalf("probe Execute() error = %v", err)
	}
	if !invoked {
		t.Fatal("probe call after recovery timeout must be admitted")
	}
	if got := b.Snapshot(); got != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, now := testBreaker(5, time.Minute)
	failN(b, 5)

	*now = now.Add(61 * time.Second)
	_ = b.Execute(func() error { return errProvider })

	if got := b.Snapshot(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}

	// The failed probe restarted the recovery window at the new clock.
	if err := b.Execute(func() error { return nil }); err != ErrOpen {
		t.Errorf("Execute() within restarted window error = %v, want ErrOpen", err)
	}
}

func TestBreaker_ForceOperations(t *testing.T) {
	b, _ := testBreaker(5, time.Minute)

	b.ForceOpen()
	if got := b.Snapshot(); got != StateOpen {
		t.Fatalf("state after ForceOpen = %v, want open", got)
	}
	if err := b.Execute(func() error { return nil }); err != ErrOpen {
		t.Errorf("Execute() after ForceOpen error = %v, want ErrOpen", err)
	}

	b.ForceClose()
	if got := b.Snapshot(); got != StateClosed {
		t.Fatalf("state after ForceClose = %v, want closed", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute() after ForceClose error = %v", err)
	}
}

func TestBreaker_IsFailurePredicate(t *testing.T) {
	marker := errors.New("not counted")
	b := New(Settings{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		IsFailure:        func(err error) bool { return err != nil && err != marker },
	})

	for i := 0; i < 5; i++ {
		_ = b.Execute(func() error { return marker })
	}
	if got := b.Snapshot(); got != StateClosed {
		t.Errorf("state = %v, want closed (predicate excluded error)", got)
	}
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	now := time.Unix(1700000000, 0)
	b := New(Settings{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
		now: func() time.Time { return now },
	})

	failN(b, 2)
	now = now.Add(2 * time.Minute)
	_ = b.Execute(func() error { return nil })

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestRegistry_PerKeyIsolation(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 2, RecoveryTimeout: time.Minute}, nil)

	es := Key{Country: "ES", Provider: "Spanish Banking Provider"}
	br := Key{Country: "BR", Provider: "Brazilian Banking Provider (Serasa)"}

	for i := 0; i < 2; i++ {
		_, _ = r.Execute(es, func() error { return errProvider })
	}

	if got := r.Snapshot(es); got != StateOpen {
		t.Errorf("ES breaker state = %v, want open", got)
	}
	if got := r.Snapshot(br); got != StateClosed {
		t.Errorf("BR breaker state = %v, want closed", got)
	}
}

func TestRegistry_ExecuteReportsShortCircuit(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil)
	key := Key{Country: "ES", Provider: "p"}

	shortCircuited, err := r.Execute(key, func() error { return errProvider })
	if shortCircuited || err != errProvider {
		t.Fatalf("first call: shortCircuited=%v err=%v", shortCircuited, err)
	}

	shortCircuited, err = r.Execute(key, func() error { return nil })
	if !shortCircuited || err != ErrOpen {
		t.Fatalf("second call: shortCircuited=%v err=%v, want true/ErrOpen", shortCircuited, err)
	}
}
