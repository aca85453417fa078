// Package mock provides a configurable fake identity provider for tests.
package mock

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/wavecast/edgeauth/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

// Provider is a test double whose behavior is overridable per method. The
// zero value behaves like a well-functioning provider named "mock" that
// accepts any code and returns a fixed profile.
type Provider struct {
	ProviderName string

	AuthorizationURLFunc func(state, codeChallenge string) string
	ExchangeCodeFunc     func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)
	FetchProfileFunc     func(ctx context.Context, token *oauth2.Token) (*providers.Profile, error)
	RevokeTokenFunc      func(ctx context.Context, token string) error

	// ExchangedCodes records every code passed to ExchangeCode.
	ExchangedCodes []string
	// RevokedTokens records every token passed to RevokeToken.
	RevokedTokens []string
}

// Name returns the configured provider name, defaulting to "mock".
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// AuthorizationURL returns a synthetic authorization URL.
func (p *Provider) AuthorizationURL(state, codeChallenge string) string {
	if p.AuthorizationURLFunc != nil {
		return p.AuthorizationURLFunc(state, codeChallenge)
	}
	return fmt.Sprintf("https://provider.example.com/authorize?state=%s&code_challenge=%s&code_challenge_method=S256", state, codeChallenge)
}

// ExchangeCode returns a static token unless overridden.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	p.ExchangedCodes = append(p.ExchangedCodes, code)
	if p.ExchangeCodeFunc != nil {
		return p.ExchangeCodeFunc(ctx, code, codeVerifier)
	}
	return &oauth2.Token{
		AccessToken:  "mock-provider-access-token",
		RefreshToken: "mock-provider-refresh-token",
		TokenType:    "Bearer",
	}, nil
}

// FetchProfile returns a fixed profile unless overridden.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*providers.Profile, error) {
	if p.FetchProfileFunc != nil {
		return p.FetchProfileFunc(ctx, token)
	}
	return &providers.Profile{
		ID:        providers.SubjectID(p.Name(), "12345"),
		Email:     "mock-user@example.com",
		Name:      "Mock User",
		AvatarURL: "https://provider.example.com/avatar.png",
		Provider:  p.Name(),
	}, nil
}

// RevokeToken records the token and succeeds unless overridden.
func (p *Provider) RevokeToken(ctx context.Context, token string) error {
	p.RevokedTokens = append(p.RevokedTokens, token)
	if p.RevokeTokenFunc != nil {
		return p.RevokeTokenFunc(ctx, token)
	}
	return nil
}
