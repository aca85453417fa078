// Package storage defines the persistence interfaces for users, sessions,
// and rate-limit counters on top of a key-value store with per-key expiry.
// Backends live in subpackages: memory for tests and single-instance use,
// valkey for production. All key layout and TTL policy is enforced here and
// in the backends; no other component talks to the store directly.
package storage

import (
	"context"
	"errors"
	"time"
)

// User tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Default record lifetimes. User records are refreshed on every login, so
// the long TTL only retires accounts that have been inactive for a year.
const (
	DefaultUserTTL    = 365 * 24 * time.Hour
	DefaultSessionTTL = 30 * 24 * time.Hour
)

// Sentinel errors returned by all backends.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// User is the stored user record, keyed by its namespaced ID and indexed by
// a secondary email-to-ID pointer record.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatar,omitempty"`
	Provider    string    `json:"provider"`
	Tier        string    `json:"tier"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// Session is the stored login session holding the provider's tokens. At
// most one session per user is discoverable through the userID pointer;
// an overwritten session remains readable by ID until its TTL expires.
type Session struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Provider             string    `json:"provider"`
	ProviderAccessToken  string    `json:"providerAccessToken"`
	ProviderRefreshToken string    `json:"providerRefreshToken,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	ExpiresAt            time.Time `json:"expiresAt"`
}

// UserStore persists user records and the email lookup pointer.
type UserStore interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail resolves the email pointer record and retrieves the
	// user it names. A stale pointer whose user record is gone reports
	// ErrUserNotFound.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpsertUser writes the user record and then the email pointer. The
	// ordering matters: a crash between the two writes leaves a stale but
	// harmless pointer, never one naming a missing user.
	UpsertUser(ctx context.Context, user *User) error

	// TouchLastLogin sets the user's last login to now and refreshes the
	// record's TTL.
	TouchLastLogin(ctx context.Context, id string) error
}

// SessionStore persists sessions and the per-user session pointer.
type SessionStore interface {
	// CreateSession stores a new session under a generated ID and points
	// the user's session pointer at it, displacing any previous session
	// from discoverability. Returns the generated session ID.
	CreateSession(ctx context.Context, session *Session) (string, error)

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// GetSessionByUser resolves the user's session pointer.
	GetSessionByUser(ctx context.Context, userID string) (*Session, error)

	// DeleteSession removes a session and, when the user pointer names it,
	// the pointer too. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes the user's discoverable session and
	// pointer. Idempotent.
	DeleteUserSessions(ctx context.Context, userID string) error
}

// RateLimitStore maintains fixed-window request counters. Implementations
// give each counter a TTL equal to the remaining window so expired entries
// self-evict.
type RateLimitStore interface {
	// IncrWindow increments the counter for key, starting a fresh window
	// of the given length if none is active. Returns the count after the
	// increment and the time the current window resets.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}
