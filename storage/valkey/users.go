package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wavecast/edgeauth/storage"
)

// userRecord is the JSON codec for user records in Valkey.
type userRecord struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Provider    string    `json:"provider"`
	Tier        string    `json:"tier"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

func toUserRecord(u *storage.User) *userRecord {
	return &userRecord{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		AvatarURL:   u.AvatarURL,
		Provider:    u.Provider,
		Tier:        u.Tier,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func (r *userRecord) toUser() *storage.User {
	return &storage.User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		AvatarURL:   r.AvatarURL,
		Provider:    r.Provider,
		Tier:        r.Tier,
		CreatedAt:   r.CreatedAt,
		LastLoginAt: r.LastLoginAt,
	}
}

// UpsertUser stores a user record and its email pointer, refreshing both
// TTLs. The record is written first so a crash between the two writes never
// leaves a pointer at a missing record.
func (s *Store) UpsertUser(ctx context.Context, user *storage.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if user.Email == "" {
		return fmt.Errorf("user email cannot be empty")
	}

	rec := toUserRecord(user)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := s.userKey(user.ID)
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(s.userTTL).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.emailKey(user.Email)).Value(user.ID).Ex(s.userTTL).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to store user email index: %w", err)
	}

	s.logger.Debug("User upserted",
		"user_id", safeTruncate(user.ID, idLogLength),
		"provider", user.Provider,
		"tier", user.Tier)

	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.userKey(id)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var rec userRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return rec.toUser(), nil
}

// GetUserByEmail retrieves a user through the email pointer. A dangling
// pointer at an evicted record reports not found.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	id, err := s.client.Do(ctx, s.client.B().Get().Key(s.emailKey(email)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user email index: %w", err)
	}

	return s.GetUser(ctx, id)
}

// TouchLastLogin sets the user's LastLoginAt to now and refreshes the record
// TTL.
func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	user.LastLoginAt = time.Now().UTC()
	return s.UpsertUser(ctx, user)
}
