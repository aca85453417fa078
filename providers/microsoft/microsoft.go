// Package microsoft implements the providers.Provider interface for
// Microsoft identity platform accounts via the common Azure AD endpoint and
// the Microsoft Graph API.
package microsoft

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthmicrosoft "golang.org/x/oauth2/microsoft"

	"github.com/wavecast/edgeauth/pkce"
	"github.com/wavecast/edgeauth/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "microsoft"

const graphMeEndpoint = "https://graph.microsoft.com/v1.0/me"

// Provider implements Microsoft OAuth with PKCE. Microsoft has no simple
// token revocation endpoint, so RevokeToken reports ErrRevocationUnsupported.
type Provider struct {
	config         *oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration

	// overridable in tests
	graphMeURL string
}

// Config holds Microsoft OAuth configuration.
type Config struct {
	// ClientID is the Azure AD application (client) ID (required).
	ClientID string

	// ClientSecret is the Azure AD client secret (required).
	ClientSecret string

	// RedirectURL is the OAuth callback URL the client lands on.
	RedirectURL string

	// Tenant selects the Azure AD tenant (default "common" for both
	// personal and work accounts).
	Tenant string

	// Scopes are optional custom scopes (defaults to openid, email,
	// profile, User.Read).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout bounds Microsoft API calls (default 10s).
	RequestTimeout time.Duration
}

// NewProvider creates a new Microsoft OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile", "User.Read"}
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
			Endpoint:     oauthmicrosoft.AzureADEndpoint(tenant),
		},
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		graphMeURL:     graphMeEndpoint,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the Microsoft authorization URL with the S256
// PKCE challenge and CSRF state.
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
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("failed to exchange code: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", providers.ErrUpstreamUnavailable, err)
	}
	return token, nil
}

// FetchProfile fetches the user's profile from Microsoft Graph /me. Personal
// accounts report the address in "mail"; some work accounts only carry it in
// "userPrincipalName".
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (*providers.Profile, error) {
	ctx, cancel := providers.EnsureContextTimeout(ctx, p.requestTimeout)
	defer cancel()

	var me struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := providers.GetJSON(ctx, p.httpClient, p.graphMeURL, token.AccessToken, &me); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if me.ID == "" {
		return nil, fmt.Errorf("user info response has no user ID")
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	if email == "" {
		return nil, fmt.Errorf("user has no email address")
	}

	return &providers.Profile{
		ID:       providers.SubjectID(providerName, me.ID),
		Email:    email,
		Name:     me.DisplayName,
		Provider: providerName,
	}, nil
}

// RevokeToken reports that Microsoft exposes no token revocation endpoint
// usable by confidential clients.
func (p *Provider) RevokeToken(_ context.Context, _ string) error {
	return providers.ErrRevocationUnsupported
}
