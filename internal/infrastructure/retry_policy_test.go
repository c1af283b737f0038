package infrastructure

import (
	"testing"
	"time"

	"github.com/riverqueue/river/rivertype"
)

func TestRetryPolicy_ExponentialWithJitter(t *testing.T) {
	policy := NewRetryPolicy()

	// base 1s, factor 2: attempt n backs off 2^(n-1)s plus up to 25% jitter.
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, time.Second, 1250 * time.Millisecond},
		{2, 2 * time.Second, 2500 * time.Millisecond},
		{3, 4 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		job := &rivertype.JobRow{Attempt: tt.attempt}
		now := time.Now()
		next := policy.NextRetry(job)
		delay := next.Sub(now)

		if delay < tt.min-50*time.Millisecond || delay > tt.max+50*time.Millisecond {
			t.Errorf("attempt %d delay = %s, want within [%s, %s]", tt.attempt, delay, tt.min, tt.max)
		}
	}
}

func TestRetryPolicy_ZeroAttemptClampsToOne(t *testing.T) {
	policy := NewRetryPolicy()
	next := policy.NextRetry(&rivertype.JobRow{Attempt: 0})
	delay := time.Until(next)
	if delay < 900*time.Millisecond || delay > 1300*time.Millisecond {
		t.Errorf("attempt 0 delay = %s, want ~1s", delay)
	}
}
