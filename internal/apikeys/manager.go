// Package apikeys implements the persisted API key lifecycle: generation,
// validation with usage tracking, revocation and audit listing.
package apikeys

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/srkrambo/mock-server/internal/kv"
)

// collectionKey is the single document holding every key record. Write
// volume is low, so the whole collection is read-modify-written under one
// lock rather than sharded.
const collectionKey = "keys"

// keyPrefix marks generated tokens so they are recognizable in logs.
const keyPrefix = "mk_"

// Key is one persisted API key record. Keys are soft-revoked, never
// physically deleted, so the audit listing stays complete.
type Key struct {
	Key           string            `json:"key"`
	CreatedAt     time.Time         `json:"created_at"`
	Active        bool              `json:"active"`
	LastUsedAt    *time.Time        `json:"last_used_at,omitempty"`
	UsageCount    int               `json:"usage_count"`
	RevokedAt     *time.Time        `json:"revoked_at,omitempty"`
	RevokedReason string            `json:"revoked_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Masked returns the key token with only the first 7 and last 4 characters
// visible, for listings.
func (k Key) Masked() string {
	if len(k.Key) <= 11 {
		return k.Key
	}
	return k.Key[:7] + "..." + k.Key[len(k.Key)-4:]
}

// Manager owns the key collection. All mutation is serialized by an internal
// mutex; storage failures propagate to the caller (fail closed).
type Manager struct {
	mu         sync.Mutex
	store      kv.Store
	staticKeys []string
	production bool
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStaticKeys adds the configured development keys, accepted by Validate
// outside production mode.
func WithStaticKeys(keys []string) Option {
	return func(m *Manager) { m.staticKeys = keys }
}

// WithProductionMode disables static key matching.
func WithProductionMode(production bool) Option {
	return func(m *Manager) { m.production = production }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over the given store.
func NewManager(store kv.Store, opts ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate creates and persists a new high-entropy key. When the metadata
// names an issuing identity under "generated_by", every prior active key of
// that identity is deactivated first, so each identity holds at most one
// active key.
func (m *Manager) Generate(ctx context.Context, metadata map[string]string) (*Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	if owner := metadata["generated_by"]; owner != "" {
		for token, record := range keys {
			if record.Active && record.Metadata["generated_by"] == owner {
				record.Active = false
				revokedAt := now
				record.RevokedAt = &revokedAt
				record.RevokedReason = "superseded"
				keys[token] = record
			}
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	record := Key{
		Key:       token,
		CreatedAt: now,
		Active:    true,
		Metadata:  metadata,
	}
	keys[token] = record

	if err := m.save(ctx, keys); err != nil {
		return nil, err
	}
	return &record, nil
}

// Validate reports whether the key is usable. Static configured keys are
// consulted first outside production mode; a hit on a persisted key bumps
// its usage stats. An unknown key is not an error.
func (m *Manager) Validate(ctx context.Context, key string) (bool, *Key, error) {
	if !m.production {
		for _, static := range m.staticKeys {
			if key == static {
				return true, &Key{Key: key, Active: true}, nil
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.load(ctx)
	if err != nil {
		return false, nil, err
	}

	record, ok := keys[key]
	if !ok || !record.Active {
		return false, nil, nil
	}

	lastUsed := m.now().UTC()
	record.LastUsedAt = &lastUsed
	record.UsageCount++
	keys[key] = record

	if err := m.save(ctx, keys); err != nil {
		return false, nil, err
	}
	return true, &record, nil
}

// Check adapts Validate to the auth.KeyChecker interface.
func (m *Manager) Check(ctx context.Context, key string) (bool, error) {
	valid, _, err := m.Validate(ctx, key)
	return valid, err
}

// Revoke deactivates a key. Revoking an unknown or already-inactive key is
// a no-op reported as false.
func (m *Manager) Revoke(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.load(ctx)
	if err != nil {
		return false, err
	}

	record, ok := keys[key]
	if !ok || !record.Active {
		return false, nil
	}

	record.Active = false
	revokedAt := m.now().UTC()
	record.RevokedAt = &revokedAt
	keys[key] = record

	if err := m.save(ctx, keys); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the key records sorted by creation time, newest first.
// Callers are responsible for masking the token before exposing it.
func (m *Manager) List(ctx context.Context, includeInactive bool) ([]Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Key, 0, len(keys))
	for _, record := range keys {
		if includeInactive || record.Active {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (m *Manager) load(ctx context.Context) (map[string]Key, error) {
	raw, err := m.store.Get(ctx, collectionKey)
	if err == kv.ErrNotFound {
		return make(map[string]Key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key collection: %w", err)
	}

	keys := make(map[string]Key)
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("failed to decode key collection: %w", err)
	}
	return keys, nil
}

func (m *Manager) save(ctx context.Context, keys map[string]Key) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to encode key collection: %w", err)
	}
	if err := m.store.Put(ctx, collectionKey, raw); err != nil {
		return fmt.Errorf("failed to persist key collection: %w", err)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
