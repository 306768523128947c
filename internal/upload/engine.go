// Package upload implements the resumable (TUS) upload state machine and the
// plain one-shot upload collaborators.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srkrambo/mock-server/internal/kv"
	"github.com/srkrambo/mock-server/internal/metrics"
)

const (
	// Version is the only supported protocol version. Requests advertising
	// any other version are rejected before any state lookup.
	Version = "1.0.0"

	// Extensions advertised by the capability probe.
	Extensions = "creation,termination"

	// PatchContentType is the exact content type required on append requests.
	PatchContentType = "application/offset+octet-stream"
)

var (
	// ErrNotFound means the session id is unknown.
	ErrNotFound = errors.New("upload session not found")
	// ErrOffsetMismatch means the client's believed offset does not match the
	// persisted one (out-of-order or duplicate chunk).
	ErrOffsetMismatch = errors.New("upload offset mismatch")
	// ErrTooLarge means the declared length or a chunk would exceed a ceiling.
	ErrTooLarge = errors.New("upload exceeds maximum size")
	// ErrInvalidLength means the declared total length is not positive.
	ErrInvalidLength = errors.New("invalid upload length")
)

// Session is the persisted state of one resumable upload. The offset only
// ever increases, in the order chunks are accepted; the upload is complete
// when offset equals the declared total length.
type Session struct {
	ID             string    `json:"id"`
	TotalLength    int64     `json:"total_length"`
	Offset         int64     `json:"offset"`
	ClientMetadata string    `json:"client_metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Complete reports whether every declared byte has been received.
func (s *Session) Complete() bool {
	return s.Offset == s.TotalLength
}

// Engine drives the create → append* → complete state machine. Appends on
// the same session are serialized by a per-session lock; different sessions
// proceed fully in parallel.
type Engine struct {
	store   kv.Store
	dir     string
	maxSize int64
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine storing chunk data under dir and session
// records in store. maxSize caps the declared total length of any session.
func NewEngine(store kv.Store, dir string, maxSize int64) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Engine{
		store:   store,
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// MaxSize returns the configured ceiling, advertised by the capability probe.
func (e *Engine) MaxSize() int64 { return e.maxSize }

// sessionLock returns the mutex dedicated to one session id.
func (e *Engine) sessionLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// Create allocates a new session with offset zero.
func (e *Engine) Create(ctx context.Context, totalLength int64, clientMetadata string) (*Session, error) {
	if totalLength <= 0 {
		return nil, ErrInvalidLength
	}
	if e.maxSize > 0 && totalLength > e.maxSize {
		return nil, ErrTooLarge
	}

	session := &Session{
		ID:             "tus_" + uuid.NewString(),
		TotalLength:    totalLength,
		ClientMetadata: clientMetadata,
		CreatedAt:      e.now().UTC(),
	}

	// Allocate the (empty) backing file up front so appends can always open
	// it in append mode.
	if err := os.WriteFile(e.dataPath(session.ID), nil, 0o644); err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	if err := e.saveSession(ctx, session); err != nil {
		return nil, err
	}
	metrics.UploadSessionsActive.Inc()
	return session, nil
}

// Append applies one chunk at the offset the client believes is current.
// The chunk is rejected when the session is unknown, the offset is stale, or
// the chunk would overrun the declared total length.
func (e *Engine) Append(ctx context.Context, id string, offset int64, chunk []byte) (*Session, error) {
	lock := e.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if offset != session.Offset {
		return nil, ErrOffsetMismatch
	}
	if session.Offset+int64(len(chunk)) > session.TotalLength {
		return nil, ErrTooLarge
	}

	file, err := os.OpenFile(e.dataPath(id), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file: %w", err)
	}
	if _, err := file.Write(chunk); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to append chunk: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close upload file: %w", err)
	}

	session.Offset += int64(len(chunk))
	if err := e.saveSession(ctx, session); err != nil {
		return nil, err
	}
	if session.Complete() {
		metrics.UploadSessionsActive.Dec()
	}
	return session, nil
}

// Status returns the session without mutating it.
func (e *Engine) Status(ctx context.Context, id string) (*Session, error) {
	return e.loadSession(ctx, id)
}

// Sweep removes sessions created more than maxAge ago, along with their
// backing files. Returns the number of sessions removed.
func (e *Engine) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := e.store.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list upload sessions: %w", err)
	}

	cutoff := e.now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		session, err := e.loadSession(ctx, id)
		if err != nil {
			continue
		}
		if session.CreatedAt.After(cutoff) {
			continue
		}

		lock := e.sessionLock(id)
		lock.Lock()
		os.Remove(e.dataPath(id))
		err = e.store.Delete(ctx, id)
		lock.Unlock()

		if err == nil {
			removed++
			if !session.Complete() {
				metrics.UploadSessionsActive.Dec()
			}
			e.mu.Lock()
			delete(e.locks, id)
			e.mu.Unlock()
		}
	}
	return removed, nil
}

func (e *Engine) dataPath(id string) string {
	// Session ids are generated server-side, but keep path handling defensive
	// against a crafted id anyway.
	return filepath.Join(e.dir, filepath.Base(strings.TrimSpace(id)))
}

func (e *Engine) loadSession(ctx context.Context, id string) (*Session, error) {
	raw, err := e.store.Get(ctx, id)
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode upload session: %w", err)
	}
	return &session, nil
}

func (e *Engine) saveSession(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode upload session: %w", err)
	}
	if err := e.store.Put(ctx, session.ID, raw); err != nil {
		return fmt.Errorf("failed to persist upload session: %w", err)
	}
	return nil
}
