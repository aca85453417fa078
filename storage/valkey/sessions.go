package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wavecast/edgeauth/storage"
)

// sessionRecord is the JSON codec for session records in Valkey. Provider
// tokens are encrypted in place when an encryptor is configured.
type sessionRecord struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Provider             string    `json:"provider"`
	ProviderAccessToken  string    `json:"provider_access_token,omitempty"`
	ProviderRefreshToken string    `json:"provider_refresh_token,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// CreateSession stores a new session and points the per-user session key at
// it, displacing any previous pointer. The generated session ID is returned.
func (s *Store) CreateSession(ctx context.Context, session *storage.Session) (string, error) {
	if session == nil {
		return "", fmt.Errorf("session cannot be nil")
	}
	if session.UserID == "" {
		return "", fmt.Errorf("session user ID cannot be empty")
	}

	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.sessionTTL)
	}

	rec := &sessionRecord{
		ID:                   id,
		UserID:               session.UserID,
		Provider:             session.Provider,
		ProviderAccessToken:  session.ProviderAccessToken,
		ProviderRefreshToken: session.ProviderRefreshToken,
		CreatedAt:            createdAt,
		ExpiresAt:            expiresAt,
	}

	if enc := s.getEncryptor(); enc != nil && enc.IsEnabled() {
		var err error
		if rec.ProviderAccessToken, err = enc.Encrypt(rec.ProviderAccessToken); err != nil {
			return "", fmt.Errorf("failed to encrypt provider access token: %w", err)
		}
		if rec.ProviderRefreshToken, err = enc.Encrypt(rec.ProviderRefreshToken); err != nil {
			return "", fmt.Errorf("failed to encrypt provider refresh token: %w", err)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := calculateTTL(expiresAt)
	if ttl == 0 {
		return "", fmt.Errorf("session already expired")
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.sessionKey(id)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.userSessionKey(session.UserID)).Value(id).Ex(ttl).Build(),
	).Error(); err != nil {
		return "", fmt.Errorf("failed to store user session index: %w", err)
	}

	s.logger.Debug("Session created",
		"session_id", safeTruncate(id, idLogLength),
		"user_id", safeTruncate(session.UserID, idLogLength),
		"provider", session.Provider)

	return id, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(id)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if enc := s.getEncryptor(); enc != nil && enc.IsEnabled() {
		if rec.ProviderAccessToken, err = enc.Decrypt(rec.ProviderAccessToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt provider access token: %w", err)
		}
		if rec.ProviderRefreshToken, err = enc.Decrypt(rec.ProviderRefreshToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt provider refresh token: %w", err)
		}
	}

	return &storage.Session{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		Provider:             rec.Provider,
		ProviderAccessToken:  rec.ProviderAccessToken,
		ProviderRefreshToken: rec.ProviderRefreshToken,
		CreatedAt:            rec.CreatedAt,
		ExpiresAt:            rec.ExpiresAt,
	}, nil
}

// GetSessionByUser retrieves the user's current session through the per-user
// pointer.
func (s *Store) GetSessionByUser(ctx context.Context, userID string) (*storage.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	id, err := s.client.Do(ctx, s.client.B().Get().Key(s.userSessionKey(userID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get user session index: %w", err)
	}

	return s.GetSession(ctx, id)
}

// DeleteSession removes a session. The per-user pointer is cleared only when
// it still names this session, so a newer session's pointer survives.
// Deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	ptrKey := s.userSessionKey(session.UserID)
	current, err := s.client.Do(ctx, s.client.B().Get().Key(ptrKey).Build()).ToString()
	if err == nil && current == id {
		if err := s.client.Do(ctx, s.client.B().Del().Key(ptrKey).Build()).Error(); err != nil {
			return fmt.Errorf("failed to delete user session index: %w", err)
		}
	}

	s.logger.Debug("Session deleted", "session_id", safeTruncate(id, idLogLength))
	return nil
}

// DeleteUserSessions removes the user's current session and pointer.
func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	ptrKey := s.userSessionKey(userID)
	id, err := s.client.Do(ctx, s.client.B().Get().Key(ptrKey).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil
		}
		return fmt.Errorf("failed to get user session index: %w", err)
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(ptrKey).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete user session index: %w", err)
	}

	return nil
}
