package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookie names the cookie carrying the session id.
	SessionCookie = "catalog_session"

	// DefaultSessionTTL is how long an idle session is kept.
	DefaultSessionTTL = 30 * time.Minute
)

// Scope is the state visible to one action invocation: attributes of the
// current request, of the caller's session and of the whole application.
type Scope struct {
	Request     map[string]any
	Session     *Session
	Application *Application
}

// Session holds string attributes that survive across requests from the same
// client. It is not safe for concurrent use; each request gets its own copy.
type Session struct {
	ID     string
	values map[string]string
	dirty  bool
}

// Get returns the attribute stored under key.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores an attribute.
func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.dirty = true
}

// Delete removes an attribute.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Application holds attributes shared by every request.
type Application struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewApplication creates an empty application scope.
func NewApplication() *Application {
	return &Application{values: make(map[string]any)}
}

// Get returns the attribute stored under key.
func (a *Application) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	return v, ok
}

// Set stores an attribute.
func (a *Application) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

// SessionStore persists session attributes by session id.
type SessionStore interface {
	// Load returns the attributes of the session, or an empty map when the
	// session is unknown or expired.
	Load(ctx context.Context, id string) (map[string]string, error)

	// Save replaces the attributes of the session and resets its expiry.
	Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error
}

// Sessions issues session cookies and loads and saves session attributes.
type Sessions struct {
	store  SessionStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessions creates a session manager. A non-positive ttl selects
// DefaultSessionTTL.
func NewSessions(store SessionStore, ttl time.Duration, logger *slog.Logger) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{store: store, ttl: ttl, logger: logger}
}

// Open returns the session of the request, issuing a new id and cookie when
// the request carries none. The cookie is written before any handler output.
func (m *Sessions) Open(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			values, err := m.store.Load(r.Context(), c.Value)
			if err != nil {
				return nil, fmt.Errorf("load session: %w", err)
			}
			return &Session{ID: c.Value, values: values}, nil
		}
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return &Session{ID: id, values: make(map[string]string)}, nil
}

// Close saves the session if any attribute changed.
func (m *Sessions) Close(ctx context.Context, s *Session) {
	if s == nil || !s.dirty {
		return
	}
	if err := m.store.Save(ctx, s.ID, s.values, m.ttl); err != nil {
		m.logger.WarnContext(ctx, "failed to save session",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.dirty = false
}

// sessionSweepEvery is how many Saves pass between sweeps of expired sessions.
const sessionSweepEvery = 256

// MemorySessionStore keeps sessions in process memory. Expired sessions are
// dropped when loaded and by a periodic sweep on Save.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	saves    int
	now      func() time.Time
}

type memorySession struct {
	values  map[string]string
	expires time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Load returns a copy of the session attributes.
func (s *MemorySessionStore) Load(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	sess, ok := s.sessions[id]
	if !ok {
		return out, nil
	}
	if s.now().After(sess.expires) {
		delete(s.sessions, id)
		return out, nil
	}
	for k, v := range sess.values {
		out[k] = v
	}
	return out, nil
}

// Save stores a copy of values.
func (s *MemorySessionStore) Save(_ context.Context, id string, values map[string]string, ttl time.Duration) error {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[id] = memorySession{values: cp, expires: now.Add(ttl)}
	if s.saves++; s.saves%sessionSweepEvery == 0 {
		for sid, sess := range s.sessions {
			if now.After(sess.expires) {
				delete(s.sessions, sid)
			}
		}
	}
	return nil
}

// Len returns the number of stored sessions, expired ones not yet swept included.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
