package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/srkrambo/mock-server/internal/kv"
)

// SessionCookie is the cookie carrying the browser session identifier.
const SessionCookie = "mockd_session"

// Session is a persisted browser session created by the Google login flow.
// Before the callback completes it only carries the CSRF state token.
type Session struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	Email         string    `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	GoogleID      string    `json:"google_id,omitempty"`
	OAuthState    string    `json:"oauth_state,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Sessions is the session store injected into the google authenticator and
// the OAuth glue handlers.
type Sessions interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

// SessionStore persists sessions in a kv.Store.
type SessionStore struct {
	store kv.Store
}

// NewSessionStore creates a session store over the given backend.
func NewSessionStore(store kv.Store) *SessionStore {
	return &SessionStore{store: store}
}

// NewSession allocates an empty, unauthenticated session.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.store.Get(ctx, id)
	if err == kv.ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Put(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.store.Put(ctx, session.ID, raw); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// SessionFromRequest resolves the session referenced by the request cookie,
// or nil when there is none.
func SessionFromRequest(r *http.Request, sessions Sessions) *Session {
	if sessions == nil {
		return nil
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	session, err := sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return session
}
