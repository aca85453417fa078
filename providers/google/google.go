// Package google implements the providers.Provider interface for Google
// OAuth using the standard userinfo endpoint.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"

	"github.com/wavecast/edgeauth/pkce"
	"github.com/wavecast/edgeauth/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "google"

const (
	userInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
	revokeEndpoint   = "https://oauth2.googleapis.com/revoke"
)

// Provider implements Google OAuth with PKCE.
type Provider struct {
	config         *oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration

	// overridable in tests
	userInfoURL string
	revokeURL   string
}

// Config holds Google OAuth configuration.
type Config struct {
	// ClientID is the Google OAuth client ID (required).
	ClientID string

	// ClientSecret is the Google OAuth client secret (required).
	ClientSecret string

	// RedirectURL is the OAuth callback URL the client lands on.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to openid, email, profile).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout bounds Google API calls (default 10s).
	RequestTimeout time.Duration
}

// NewProvider creates a new Google OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = providers.DefaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     oauthgoogle.Endpoint,
		},
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		userInfoURL:    userInfoEndpoint,
		revokeURL:      revokeEndpoint,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the Google authorization URL with the S256 PKCE
// challenge and CSRF state.
func (p *Provider) AuthorizationURL(state, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.ChallengeMethod),
	}
	return p.config.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens, presenting the
// PKCE verifier.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		// A RetrieveError means the endpoint answered and rejected the code;
		// anything else is a transport failure.
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("failed to exchange code: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", providers.ErrUpstreamUnavailable, err)
	}
	return token, nil
}

// FetchProfile fetches the user's profile from Google's userinfo endpoint
// and normalizes it.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	var info struct {
		ID      string `json:"id"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := providers.GetJSON(ctx, p.httpClient, p.userInfoURL, token.AccessToken, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	// The v2 userinfo endpoint returns "id"; OIDC-flavored responses use "sub".
	nativeID := info.ID
	if nativeID == "" {
		nativeID = info.Sub
	}
	if nativeID == "" {
		return nil, fmt.Errorf("user info response has no user ID")
	}

	return &providers.Profile{
		ID:        providers.SubjectID(providerName, nativeID),
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
		Provider:  providerName,
	}, nil
}

// RevokeToken revokes a token at Google's revocation endpoint.
func (p *Provider) RevokeToken(ctx context.Context, token string) error {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	data := url.Values{}
	data.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", providers.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation failed with status %d", resp.StatusCode)
	}
	return nil
}
