// Package lock provides the distributed single-flight lock keyed by
// application id.
//
// At most one holder exists cluster-wide at any instant. The lease carries a
// fencing token; release refuses to delete a lease whose token no longer
// matches, so a slow holder whose TTL expired cannot release a successor's
// lease. The TTL (default 5 minutes) outlives the worst-case task duration
// to prevent deadlock on holder death.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the acquire budget elapses while another
// worker holds the lease.
var ErrNotAcquired = errors.New("lock not acquired within budget")

// releaseScript deletes the lease only when the fencing token still matches.
// Running compare-and-delete server-side keeps release atomic.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures a Service.
type Options struct {
	// TTL is the lease lifetime.
	TTL time.Duration

	// AcquireBudget bounds how long Acquire polls before giving up.
	AcquireBudget time.Duration

	// RetryInterval is the polling cadence while the lease is held elsewhere.
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.AcquireBudget <= 0 {
		o.AcquireBudget = 2 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 100 * time.Millisecond
	}
	return o
}

// Lease is an exclusive time-bounded token for one key.
type Lease struct {
	Key   string
	Token string
}

// Service acquires and releases leases backed by Redis.
type Service struct {
	client  redis.UniversalClient
	options Options
}

// NewService creates the lock service.
func NewService(client redis.UniversalClient, options Options) *Service {
	return &Service{client: client, options: options.withDefaults()}
}

// Acquire obtains the exclusive lease for key, polling until the acquire
// budget elapses. Returns ErrNotAcquired when another holder keeps the lease
// for the whole budget.
func (s *Service) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(s.options.AcquireBudget)

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.options.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lease{Key: key, Token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.options.RetryInterval):
		}
	}
}

// Release frees the lease. Releasing an expired or superseded lease is a
// no-op: the fencing token comparison refuses the delete.
func (s *Service) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, s.client, []string{lease.Key}, lease.Token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", lease.Key, err)
	}
	return nil
}

// ApplicationKey builds the lease key for an application id.
func ApplicationKey(applicationID string) string {
	return "process:" + applicationID
}
