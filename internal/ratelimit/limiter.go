// Package ratelimit implements persisted fixed-window rate limiting keyed by
// identity class (per-IP, global, per-endpoint).
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/srkrambo/mock-server/internal/kv"
)

// Class identifies which ceiling a counter belongs to.
type Class string

const (
	ClassIP       Class = "ip"
	ClassGlobal   Class = "global"
	ClassEndpoint Class = "endpoint"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, floored at
// zero. Surfaced to clients as the retry_after field and Retry-After header.
func (r Result) RetryAfter(now time.Time) int {
	seconds := int(r.ResetAt.Sub(now).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

// counter is the persisted per-(identity, class) record.
type counter struct {
	Count         int   `json:"count"`
	WindowStart   int64 `json:"window_start"`
	WindowSeconds int64 `json:"window_seconds"`
	Limit         int   `json:"limit"`
}

func (c counter) resetAt() time.Time {
	return time.Unix(c.WindowStart+c.WindowSeconds, 0)
}

// Limiter evaluates fixed-window ceilings against counters in a kv.Store.
// Concurrent increments on the same counter are serialized with a
// compare-and-swap loop, so two racing requests can never both observe the
// pre-increment count.
type Limiter struct {
	store kv.Store
	now   func() time.Time
}

// New creates a limiter over the given store.
func New(store kv.Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// NewWithClock creates a limiter with an injected clock, used by tests to
// step through window boundaries.
func NewWithClock(store kv.Store, now func() time.Time) *Limiter {
	return &Limiter{store: store, now: now}
}

// Check consults and increments the counter for (identity, class). The count
// is incremented even when the request ends up denied, so a client hammering
// past the ceiling keeps pushing its own reset out rather than sneaking in on
// a read-without-write race.
func (l *Limiter) Check(ctx context.Context, identity string, class Class, maxRequests int, window time.Duration) (Result, error) {
	key := counterKey(identity, class)
	windowSeconds := int64(window / time.Second)

	for {
		raw, err := l.store.Get(ctx, key)
		if err != nil && err != kv.ErrNotFound {
			return Result{}, fmt.Errorf("failed to read rate counter: %w", err)
		}

		now := l.now()
		exists := err == nil
		var current counter
		if exists {
			// A corrupt record decodes to the zero counter, whose window is
			// long expired, so it gets replaced by a fresh one below.
			_ = json.Unmarshal(raw, &current)
		}

		next := current
		if !exists || now.Unix() >= current.WindowStart+current.WindowSeconds {
			next = counter{WindowStart: now.Unix(), WindowSeconds: windowSeconds}
		}
		next.Count++
		next.Limit = maxRequests
		next.WindowSeconds = windowSeconds

		encoded, err := json.Marshal(next)
		if err != nil {
			return Result{}, fmt.Errorf("failed to encode rate counter: %w", err)
		}

		var old []byte
		if exists {
			old = raw
		}
		err = l.store.CompareAndSwap(ctx, key, old, encoded)
		if err == kv.ErrConflict {
			// Another request updated the counter first; re-read and retry.
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to update rate counter: %w", err)
		}

		remaining := maxRequests - next.Count
		if remaining < 0 {
			remaining = 0
		}
		return Result{
			Allowed:   next.Count <= maxRequests,
			Limit:     maxRequests,
			Remaining: remaining,
			ResetAt:   next.resetAt(),
		}, nil
	}
}

// Sweep removes counters whose window expired more than maxStale ago.
// Returns the number of purged records.
func (l *Limiter) Sweep(ctx context.Context, maxStale time.Duration) (int, error) {
	keys, err := l.store.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list rate counters: %w", err)
	}

	now := l.now()
	purged := 0
	for _, key := range keys {
		raw, err := l.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var c counter
		if json.Unmarshal(raw, &c) != nil || now.Sub(c.resetAt()) >= maxStale {
			if err := l.store.Delete(ctx, key); err == nil {
				purged++
			}
		}
	}
	return purged, nil
}

func counterKey(identity string, class Class) string {
	return string(class) + ":" + identity
}
