// Package resources is the flat document store backing the generic CRUD
// surface: any otherwise-unrouted path maps to one stored JSON document.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/srkrambo/mock-server/internal/kv"
)

// ErrNotFound means no document is stored under the requested path.
var ErrNotFound = errors.New("resource not found")

// Entry is one listing row for a stored document.
type Entry struct {
	Resource string `json:"resource"`
	Size     int    `json:"size"`
}

// Store persists one JSON document per resource path in a kv backend.
type Store struct {
	store kv.Store
}

// NewStore creates a resource store on top of the given backend.
func NewStore(store kv.Store) *Store {
	return &Store{store: store}
}

// Put stores the document under path, creating or replacing it wholesale.
func (s *Store) Put(ctx context.Context, path string, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode resource: %w", err)
	}
	if err := s.store.Put(ctx, resourceKey(path), raw); err != nil {
		return fmt.Errorf("failed to persist resource: %w", err)
	}
	return nil
}

// Get returns the document stored under path.
func (s *Store) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	raw, err := s.store.Get(ctx, resourceKey(path))
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode resource: %w", err)
	}
	return data, nil
}

// Exists reports whether a document is stored under path.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.store.Get(ctx, resourceKey(path))
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check resource: %w", err)
	}
	return true, nil
}

// Merge applies a shallow union onto the existing document: incoming keys
// overwrite, untouched keys survive, nested objects are replaced whole.
func (s *Store) Merge(ctx context.Context, path string, patch map[string]interface{}) (map[string]interface{}, error) {
	existing, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing = make(map[string]interface{}, len(patch))
	}
	for k, v := range patch {
		existing[k] = v
	}
	if err := s.Put(ctx, path, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes the document. Deleting an unknown path is ErrNotFound.
func (s *Store) Delete(ctx context.Context, path string) error {
	key := resourceKey(path)
	if _, err := s.store.Get(ctx, key); err != nil {
		if err == kv.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check resource: %w", err)
	}
	if err := s.store.Delete(ctx, key); err != nil && err != kv.ErrNotFound {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// List returns every stored document path, sorted.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	keys, err := s.store.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Resource: resourcePath(key), Size: len(raw)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
	return entries, nil
}

// resourceKey maps a request path to its storage key, e.g. /users/123 to
// users_123. The root path stores under a reserved name.
func resourceKey(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "root"
	}
	return strings.ReplaceAll(trimmed, "/", "_")
}

func resourcePath(key string) string {
	if key == "root" {
		return "/"
	}
	return "/" + strings.ReplaceAll(key, "_", "/")
}
