// Package providers defines the interface for third-party identity providers
// and the normalized user profile shape shared by all of them. Concrete
// implementations for Google, GitHub, and Microsoft live in subpackages;
// adding a provider means adding a subpackage and registering it, nothing
// else changes.
package providers

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRequestTimeout bounds every outbound call to an identity provider
// so an unresponsive upstream cannot hang a request indefinitely.
const DefaultRequestTimeout = 10 * time.Second

// ErrRevocationUnsupported is returned by providers that have no token
// revocation endpoint. Callers treat it as a no-op, not a failure.
var ErrRevocationUnsupported = errors.New("provider does not support token revocation")

// ErrUpstreamUnavailable indicates the provider could not be reached or
// answered with a transport-level failure. It lets callers distinguish
// "upstream down" from "request rejected".
var ErrUpstreamUnavailable = errors.New("identity provider unavailable")

// Provider is the capability set every identity provider variant supplies:
// building the authorization URL, exchanging an authorization code for
// provider tokens, and fetching a normalized user profile.
type Provider interface {
	// Name returns the lowercase provider name (e.g. "google").
	Name() string

	// AuthorizationURL builds the provider authorization URL carrying the
	// CSRF state and the S256 PKCE code challenge.
	AuthorizationURL(state, codeChallenge string) string

	// ExchangeCode exchanges an authorization code for provider tokens,
	// presenting the PKCE code verifier.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// FetchProfile fetches the provider's user info and normalizes it into
	// the common Profile shape.
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)

	// RevokeToken revokes a provider token where the provider supports it,
	// returning ErrRevocationUnsupported otherwise.
	RevokeToken(ctx context.Context, token string) error
}

// Profile is the provider-agnostic user profile produced fresh on every
// callback. ID is namespaced as "<provider>_<provider-native-id>" so native
// IDs from different providers can never collide.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar,omitempty"`
	Provider  string `json:"provider"`
}

// SubjectID builds the namespaced profile ID for a provider-native user ID.
func SubjectID(provider, nativeID string) string {
	return provider + "_" + nativeID
}
