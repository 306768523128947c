package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/srkrambo/mock-server/internal/kv"
)

func TestCheckAllowsUpToLimit(t *testing.T) {
	t.Parallel()

	limiter := New(kv.NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result, err := limiter.Check(ctx, "10.0.0.1", ClassIP, 5, time.Minute)
		if err != nil {
			t.Fatalf("Check failed on request %d: %v", i, err)
		}
		if !result.Allowed {
			t.Errorf("request %d should be allowed", i)
		}
		if want := 5 - i; result.Remaining != want {
			t.Errorf("request %d: expected remaining %d, got %d", i, want, result.Remaining)
		}
	}

	// The sixth request trips the ceiling.
	result, err := limiter.Check(ctx, "10.0.0.1", ClassIP, 5, time.Minute)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.Allowed {
		t.Error("request over the limit should be denied")
	}
	if result.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", result.Remaining)
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := NewWithClock(kv.NewMemoryStore(), func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Check(ctx, "10.0.0.2", ClassIP, 2, time.Minute); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}

	result, _ := limiter.Check(ctx, "10.0.0.2", ClassIP, 2, time.Minute)
	if result.Allowed {
		t.Fatal("expected denial before window reset")
	}

	// Jump far past the window; the reset must zero the count and open a new
	// window anchored at the current time, however stale the old one was.
	now = now.Add(10 * time.Minute)

	result, err := limiter.Check(ctx, "10.0.0.2", ClassIP, 2, time.Minute)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Allowed {
		t.Error("first request of a fresh window should be allowed")
	}
	if result.Remaining != 1 {
		t.Errorf("expected remaining 1, got %d", result.Remaining)
	}
	if want := now.Add(time.Minute); !result.ResetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, result.ResetAt)
	}
}

func TestDeniedRequestsStillIncrement(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := NewWithClock(kv.NewMemoryStore(), func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := limiter.Check(ctx, "10.0.0.3", ClassIP, 2, time.Minute); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}

	// The window was anchored by the first request, not refreshed by the
	// denied ones, so just before expiry the client is still denied.
	now = now.Add(59 * time.Second)
	result, _ := limiter.Check(ctx, "10.0.0.3", ClassIP, 2, time.Minute)
	if result.Allowed {
		t.Error("expected denial inside the original window")
	}
}

func TestIdentitiesAndClassesAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := New(kv.NewMemoryStore())
	ctx := context.Background()

	if _, err := limiter.Check(ctx, "10.0.0.4", ClassIP, 1, time.Minute); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	result, _ := limiter.Check(ctx, "10.0.0.4", ClassIP, 1, time.Minute)
	if result.Allowed {
		t.Fatal("second request should be denied")
	}

	// Same identity, different class: unaffected.
	result, _ = limiter.Check(ctx, "10.0.0.4:/upload", ClassEndpoint, 1, time.Minute)
	if !result.Allowed {
		t.Error("endpoint class counter should be independent of the IP counter")
	}

	// Different identity, same class: unaffected.
	result, _ = limiter.Check(ctx, "10.0.0.5", ClassIP, 1, time.Minute)
	if !result.Allowed {
		t.Error("counters for different identities should be independent")
	}
}

func TestConcurrentChecksNeverDoubleAdmit(t *testing.T) {
	t.Parallel()

	limiter := New(kv.NewMemoryStore())
	ctx := context.Background()

	const workers = 50
	const limit = 20

	var wg sync.WaitGroup
	allowed := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := limiter.Check(ctx, "race", ClassGlobal, limit, time.Minute)
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			allowed <- result.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	admitted := 0
	for ok := range allowed {
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Errorf("expected exactly %d admitted requests, got %d", limit, admitted)
	}
}

func TestSweepPurgesStaleCounters(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	limiter := NewWithClock(store, func() time.Time { return now })
	ctx := context.Background()

	if _, err := limiter.Check(ctx, "stale", ClassIP, 5, time.Minute); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if _, err := limiter.Check(ctx, "fresh", ClassIP, 5, time.Minute); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	// Age only one counter past the one hour retention.
	now = now.Add(30 * time.Second)
	if _, err := limiter.Check(ctx, "fresh", ClassIP, 5, time.Hour); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	now = now.Add(61*time.Minute + 30*time.Second)

	purged, err := limiter.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged counter, got %d", purged)
	}

	keys, _ := store.Keys(ctx, "")
	if len(keys) != 1 {
		t.Errorf("expected 1 surviving counter, got %d", len(keys))
	}
}
