package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testClient connects to the Redis named by REDIS_ADDR, skipping the test
// when no instance is reachable.
func testClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAcquireRelease(t *testing.T) {
	client := testClient(t)
	svc := NewService(client, Options{TTL: time.Minute, AcquireBudget: 200 * time.Millisecond})
	ctx := context.Background()

	key := ApplicationKey("test-acquire-release")
	defer client.Del(ctx, key)

	lease, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Second acquirer is blocked while the lease is held.
	if _, err := svc.Acquire(ctx, key); err != ErrNotAcquired {
		t.Errorf("second Acquire() error = %v, want ErrNotAcquired", err)
	}

	if err := svc.Release(ctx, lease); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// Lease is free again.
	lease2, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	_ = svc.Release(ctx, lease2)
}

func TestRelease_IsIdempotent(t *testing.T) {
	client := testClient(t)
	svc := NewService(client, Options{TTL: time.Minute})
	ctx := context.Background()

	key := ApplicationKey("test-release-idempotent")
	defer client.Del(ctx, key)

	lease, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := svc.Release(ctx, lease); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if err := svc.Release(ctx, lease); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}
	if err := svc.Release(ctx, nil); err != nil {
		t.Errorf("Release(nil) error = %v, want nil", err)
	}
}

func TestRelease_RefusesStaleToken(t *testing.T) {
	client := testClient(t)
	svc := NewService(client, Options{TTL: time.Minute, AcquireBudget: 100 * time.Millisecond})
	ctx := context.Background()

	key := ApplicationKey("test-release-fencing")
	defer client.Del(ctx, key)

	stale, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Simulate TTL expiry followed by a new holder.
	client.Del(ctx, key)
	fresh, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() for new holder error = %v", err)
	}

	// The stale lease must not release the fresh holder's lock.
	if err := svc.Release(ctx, stale); err != nil {
		t.Fatalf("stale Release() error = %v", err)
	}
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != fresh.Token {
		t.Errorf("lock value = %q, want fresh token %q", val, fresh.Token)
	}

	_ = svc.Release(ctx, fresh)
}

func TestAcquire_ContextCancellation(t *testing.T) {
	client := testClient(t)
	svc := NewService(client, Options{TTL: time.Minute, AcquireBudget: 10 * time.Second})
	ctx := context.Background()

	key := ApplicationKey("test-acquire-cancel")
	defer client.Del(ctx, key)

	holder, err := svc.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer svc.Release(ctx, holder)

	cancelCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()

	if _, err := svc.Acquire(cancelCtx, key); err != context.DeadlineExceeded {
		t.Errorf("Acquire() with cancelled context error = %v, want DeadlineExceeded", err)
	}
}
