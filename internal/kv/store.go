// Package kv provides the key-value storage abstraction shared by the rate
// limiter, the API key manager and the upload engine. The same logic runs
// against an in-memory store in tests, a file-backed store for local use and
// a Redis-backed store for networked deployments.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("kv: key not found")

// ErrConflict is returned by CompareAndSwap when the stored value does not
// match the expected previous value.
var ErrConflict = errors.New("kv: compare-and-swap conflict")

// Store is a minimal key-value interface. Values are opaque byte slices;
// callers own the encoding (JSON everywhere in this project).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndSwap atomically replaces the value under key, but only if
	// the current value equals old. A nil old means "create only if the key
	// does not exist yet". Returns ErrConflict when the precondition fails.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
