// Package testutil provides testing fixtures and helpers shared by the
// service's test suites.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/wavecast/edgeauth/providers"
	"github.com/wavecast/edgeauth/storage"
)

// MockTime provides a controllable time source for deterministic testing.
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration.
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value.
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// GenerateRandomString returns n random bytes base64url-encoded.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("testutil: failed to read random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// TestToken creates a provider OAuth2 token fixture.
func TestToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  GenerateRandomString(32),
		TokenType:    "Bearer",
		RefreshToken: GenerateRandomString(32),
		Expiry:       time.Now().Add(1 * time.Hour),
	}
}

// TestProfile creates a provider profile fixture.
func TestProfile(provider string) *providers.Profile {
	return &providers.Profile{
		ID:       providers.SubjectID(provider, "12345"),
		Email:    "test@example.com",
		Name:     "Test User",
		Provider: provider,
	}
}

// TestUser creates a stored user fixture.
func TestUser(provider string) *storage.User {
	now := time.Now().UTC()
	return &storage.User{
		ID:          providers.SubjectID(provider, "12345"),
		Email:       "test@example.com",
		Name:        "Test User",
		Provider:    provider,
		Tier:        storage.TierFree,
		CreatedAt:   now,
		LastLoginAt: now,
	}
}
