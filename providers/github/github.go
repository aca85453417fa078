// Package github implements the providers.Provider interface for GitHub
// OAuth Apps.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/wavecast/edgeauth/pkce"
	"github.com/wavecast/edgeauth/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "github"

const (
	userEndpoint   = "https://api.github.com/user"
	emailsEndpoint = "https://api.github.com/user/emails"
)

// Provider implements GitHub OAuth with PKCE. GitHub has no token revocation
// endpoint for OAuth Apps, so RevokeToken reports ErrRevocationUnsupported.
type Provider struct {
	config         *oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration

	// overridable in tests
	userURL   string
	emailsURL string
}

// Config holds GitHub OAuth configuration.
type Config struct {
	// ClientID is the GitHub OAuth App client ID (required).
	ClientID string

	// ClientSecret is the GitHub OAuth App client secret (required).
	ClientSecret string

	// RedirectURL is the OAuth callback URL the client lands on.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to user:email, read:user).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout bounds GitHub API calls (default 10s).
	RequestTimeout time.Duration
}

// NewProvider creates a new GitHub OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email", "read:user"}
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
			Endpoint:     oauthgithub.Endpoint,
		},
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		userURL:        userEndpoint,
		emailsURL:      emailsEndpoint,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the GitHub authorization URL. GitHub supports PKCE
// even though it does not require it for confidential clients.
func (p *Provider) AuthorizationURL(state, codeChallenge string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.ChallengeMethod),
	}
	return p.config.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens. GitHub OAuth Apps
// issue non-expiring access tokens and no refresh token.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("failed to exchange code: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", providers.ErrUpstreamUnavailable, err)
	}
	return token, nil
}

// FetchProfile fetches the user's profile from GitHub's /user endpoint.
// GitHub hides the email when the user has no public email set, in which
// case the /user/emails endpoint is consulted and the primary verified
// address is selected.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	var ghUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := providers.GetJSON(ctx, p.httpClient, p.userURL, token.AccessToken, &ghUser); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	email := ghUser.Email
	if email == "" {
		fetched, err := p.fetchPrimaryVerifiedEmail(ctx, token.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user emails: %w", err)
		}
		email = fetched
	}
	// A user without a resolvable email cannot be stored or looked up later.
	if email == "" {
		return nil, fmt.Errorf("user has no verified email address")
	}

	name := ghUser.Name
	if name == "" {
		name = ghUser.Login
	}

	return &providers.Profile{
		ID:        providers.SubjectID(providerName, strconv.FormatInt(ghUser.ID, 10)),
		Email:     email,
		Name:      name,
		AvatarURL: ghUser.AvatarURL,
		Provider:  providerName,
	}, nil
}

// fetchPrimaryVerifiedEmail selects the primary verified email from
// /user/emails, falling back to the first verified one.
func (p *Provider) fetchPrimaryVerifiedEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := providers.GetJSON(ctx, p.httpClient, p.emailsURL, accessToken, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

// RevokeToken reports that GitHub OAuth Apps have no revocation endpoint.
func (p *Provider) RevokeToken(_ context.Context, _ string) error {
	return providers.ErrRevocationUnsupported
}
