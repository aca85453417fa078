// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments; production multi-instance deployments use the valkey backend.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wavecast/edgeauth/storage"
)

// Compile-time interface checks.
var (
	_ storage.UserStore      = (*Store)(nil)
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.RateLimitStore = (*Store)(nil)
)

type userRecord struct {
	user      storage.User
	expiresAt time.Time
}

type sessionRecord struct {
	session   storage.Session
	expiresAt time.Time
}

type windowRecord struct {
	count   int64
	resetAt time.Time
}

// Store is an in-memory implementation of all storage interfaces. Expiry is
// enforced on read; Cleanup sweeps expired records out eagerly.
type Store struct {
	mu sync.RWMutex

	users      map[string]*userRecord
	emailIndex map[string]string // email -> user ID
	sessions   map[string]*sessionRecord
	userIndex  map[string]string // user ID -> session ID
	windows    map[string]*windowRecord

	userTTL    time.Duration
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds memory store configuration.
type Config struct {
	// UserTTL is the user record lifetime (default 365 days).
	UserTTL time.Duration

	// SessionTTL is the fallback session lifetime when a session carries
	// no ExpiresAt (default 30 days).
	SessionTTL time.Duration

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger
}

// New creates an in-memory store.
func New(cfg Config) *Store {
	userTTL := cfg.UserTTL
	if userTTL == 0 {
		userTTL = storage.DefaultUserTTL
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = storage.DefaultSessionTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		users:      make(map[string]*userRecord),
		emailIndex: make(map[string]string),
		sessions:   make(map[string]*sessionRecord),
		userIndex:  make(map[string]string),
		windows:    make(map[string]*windowRecord),
		userTTL:    userTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// SetNowFunc replaces the store's clock. Tests use it to advance time past
// TTLs and rate-limit windows deterministically.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ============================================================
// UserStore
// ============================================================

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok || s.now().After(rec.expiresAt) {
		return nil, storage.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// GetUserByEmail resolves the email index and retrieves the user.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emailIndex[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	rec, ok := s.users[id]
	if !ok || s.now().After(rec.expiresAt) {
		// Stale pointer: the user record expired first.
		return nil, storage.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// UpsertUser writes the user record and then the email pointer.
func (s *Store) UpsertUser(_ context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("user with an ID is required")
	}
	if user.Email == "" {
		return fmt.Errorf("user email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[u.ID] = &userRecord{user: u, expiresAt: s.now().Add(s.userTTL)}
	s.emailIndex[u.Email] = u.ID
	return nil
}

// TouchLastLogin sets LastLoginAt to now and refreshes the record TTL.
func (s *Store) TouchLastLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok || s.now().After(rec.expiresAt) {
		return storage.ErrUserNotFound
	}
	rec.user.LastLoginAt = s.now()
	rec.expiresAt = s.now().Add(s.userTTL)
	return nil
}

// ============================================================
// SessionStore
// ============================================================

// CreateSession stores a session under a fresh ID and repoints the user's
// session pointer at it.
func (s *Store) CreateSession(_ context.Context, session *storage.Session) (string, error) {
	if session == nil || session.UserID == "" {
		return "", fmt.Errorf("session with a user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := *session
	sess.ID = uuid.NewString()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = s.now().Add(s.sessionTTL)
	}

	s.sessions[sess.ID] = &sessionRecord{session: sess, expiresAt: sess.ExpiresAt}
	s.userIndex[sess.UserID] = sess.ID
	return sess.ID, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(_ context.Context, id string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok || s.now().After(rec.expiresAt) {
		return nil, storage.ErrSessionNotFound
	}
	sess := rec.session
	return &sess, nil
}

// GetSessionByUser resolves the user's session pointer.
func (s *Store) GetSessionByUser(_ context.Context, userID string) (*storage.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIndex[userID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	rec, ok := s.sessions[id]
	if !ok || s.now().After(rec.expiresAt) {
		return nil, storage.ErrSessionNotFound
	}
	sess := rec.session
	return &sess, nil
}

// DeleteSession removes a session, and the user pointer when it names this
// session. Idempotent.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if ok {
		if s.userIndex[rec.session.UserID] == id {
			delete(s.userIndex, rec.session.UserID)
		}
		delete(s.sessions, id)
	}
	return nil
}

// DeleteUserSessions removes the user's discoverable session and pointer.
func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.userIndex[userID]; ok {
		delete(s.sessions, id)
		delete(s.userIndex, userID)
	}
	return nil
}

// ============================================================
// RateLimitStore
// ============================================================

// IncrWindow increments the fixed-window counter for key, starting a new
// window when none is active or the current one has elapsed.
func (s *Store) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.windows[key]
	if !ok || !now.Before(rec.resetAt) {
		rec = &windowRecord{count: 1, resetAt: now.Add(window)}
		s.windows[key] = rec
		return rec.count, rec.resetAt, nil
	}
	rec.count++
	return rec.count, rec.resetAt, nil
}

// ============================================================
// Maintenance
// ============================================================

// Cleanup removes expired users, sessions, and rate windows. The read paths
// already treat expired records as absent; this just reclaims memory.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	for id, rec := range s.users {
		if now.After(rec.expiresAt) {
			if s.emailIndex[rec.user.Email] == id {
				delete(s.emailIndex, rec.user.Email)
			}
			delete(s.users, id)
			removed++
		}
	}
	for id, rec := range s.sessions {
		if now.After(rec.expiresAt) {
			if s.userIndex[rec.session.UserID] == id {
				delete(s.userIndex, rec.session.UserID)
			}
			delete(s.sessions, id)
			removed++
		}
	}
	for key, rec := range s.windows {
		if !now.Before(rec.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Memory store cleanup completed", "removed", removed)
	}
}
