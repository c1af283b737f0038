package infrastructure

import (
	"math/rand"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// retryPolicy schedules transient-failure retries with exponential backoff:
// base 1s, factor 2, plus up to 25% jitter to avoid thundering retries when a
// provider outage fails a batch of jobs at once.
type retryPolicy struct {
	base time.Duration
}

// NewRetryPolicy returns the queue-wide retry policy.
func NewRetryPolicy() river.ClientRetryPolicy {
	return &retryPolicy{base: time.Second}
}

// NextRetry implements river.ClientRetryPolicy.
func (p *retryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	backoff := p.base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(backoff)/4 + 1))
	return time.Now().Add(backoff + jitter)
}
