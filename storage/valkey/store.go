// Package valkey provides a Valkey-backed implementation of the storage
// interfaces. Every record carries a TTL so the store self-evicts expired
// users, sessions, and rate-limit windows; the service itself keeps no
// long-lived state anywhere else.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/wavecast/edgeauth/security"
	"github.com/wavecast/edgeauth/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "edgeauth:"

	// connectionVerifyTimeout bounds the initial PING after connecting.
	connectionVerifyTimeout = 5 * time.Second

	// idLogLength is the number of characters included when logging record
	// IDs. Enough for correlation, never the whole identifier.
	idLogLength = 8
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for Valkey authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "edgeauth:").
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger

	// UserTTL is the user record lifetime (default 365 days).
	UserTTL time.Duration

	// SessionTTL is the fallback session lifetime when a session carries no
	// ExpiresAt (default 30 days).
	SessionTTL time.Duration
}

// Store is a Valkey-backed implementation of all storage interfaces.
type Store struct {
	client     valkeygo.Client
	prefix     string
	logger     *slog.Logger
	userTTL    time.Duration
	sessionTTL time.Duration

	// encryptor provides optional provider-token encryption at rest.
	// Access must be synchronized via encryptorMu.
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex
}

// Compile-time interface checks.
var (
	_ storage.UserStore      = (*Store)(nil)
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.RateLimitStore = (*Store)(nil)
)

// New creates a Valkey-backed storage instance and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userTTL := cfg.UserTTL
	if userTTL == 0 {
		userTTL = storage.DefaultUserTTL
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL == 0 {
		sessionTTL = storage.DefaultSessionTTL
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:     client,
		prefix:     prefix,
		logger:     logger,
		userTTL:    userTTL,
		sessionTTL: sessionTTL,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetEncryptor enables encryption at rest for provider tokens held in
// sessions. Safe to call concurrently with store use.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Provider token encryption at rest enabled for Valkey storage")
	}
}

func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// isNilError checks if the error indicates a nil/not-found result.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// safeTruncate truncates a string to n characters for logging.
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// calculateTTL returns the remaining lifetime until expiresAt, or 0 when
// already elapsed.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// ============================================================
// Key Helpers
// ============================================================

// userKey returns the key for a user record: {prefix}user:{id}
func (s *Store) userKey(id string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, id)
}

// emailKey returns the key for the email pointer: {prefix}user:email:{email}
func (s *Store) emailKey(email string) string {
	return fmt.Sprintf("%suser:email:%s", s.prefix, email)
}

// sessionKey returns the key for a session record: {prefix}session:{id}
func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, id)
}

// userSessionKey returns the key for the per-user session pointer:
// {prefix}session:user:{userID}
func (s *Store) userSessionKey(userID string) string {
	return fmt.Sprintf("%ssession:user:%s", s.prefix, userID)
}

// rateKey returns the key for a rate-limit window: {prefix}ratelimit:{key}
func (s *Store) rateKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", s.prefix, key)
}
