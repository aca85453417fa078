// Package edgeauth implements the authentication core of an edge-deployed
// identity service: PKCE-protected OAuth login against third-party identity
// providers, issuance and verification of the service's own access and
// refresh tokens, and session persistence on a TTL'd key-value store.
//
// The design assumes every request may be handled by a freshly started
// process. Nothing is cached in memory between requests; the storage
// interfaces are the only shared state, and the PKCE state lives entirely
// with the client between initiate and callback.
package edgeauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavecast/edgeauth/instrumentation"
	"github.com/wavecast/edgeauth/internal/util"
	"github.com/wavecast/edgeauth/pkce"
	"github.com/wavecast/edgeauth/providers"
	"github.com/wavecast/edgeauth/security"
	"github.com/wavecast/edgeauth/storage"
	"github.com/wavecast/edgeauth/token"
)

// Endpoint names used for rate-limit keys and logging.
const (
	endpointInitiate = "initiate"
	endpointCallback = "callback"
	endpointRefresh  = "refresh"
	endpointLogout   = "logout"
	endpointProfile  = "profile"
)

// Server composes the authentication components into the five operations of
// the login lifecycle. All methods are safe for concurrent use; the server
// itself holds no per-request state.
type Server struct {
	providers map[string]providers.Provider
	users     storage.UserStore
	sessions  storage.SessionStore
	tokens    *token.Service
	limiter   *security.FixedWindowLimiter
	inst      *instrumentation.Instrumentation
	config    *Config
	logger    *slog.Logger
}

// NewServer creates a Server. rateStore may be nil, in which case rate
// limiting is disabled; inst may be nil for no-op instrumentation.
func NewServer(
	providerSet map[string]providers.Provider,
	users storage.UserStore,
	sessions storage.SessionStore,
	tokens *token.Service,
	rateStore storage.RateLimitStore,
	inst *instrumentation.Instrumentation,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if len(providerSet) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if inst == nil {
		var err error
		inst, err = instrumentation.New(instrumentation.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create instrumentation: %w", err)
		}
	}

	config = applyDefaults(config, logger)

	var limiter *security.FixedWindowLimiter
	if rateStore != nil && !config.DisableRateLimiting {
		limiter = security.NewFixedWindowLimiter(rateStore, logger)
		limiter.SetLimit(endpointInitiate, config.InitiateLimit)
		limiter.SetLimit(endpointCallback, config.CallbackLimit)
		limiter.SetLimit(endpointRefresh, config.RefreshLimit)
		limiter.SetLimit(endpointLogout, config.LogoutLimit)
	}

	return &Server{
		providers: providerSet,
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		limiter:   limiter,
		inst:      inst,
		config:    config,
		logger:    logger,
	}, nil
}

// recordProviderCall counts one outbound identity provider call and its
// duration.
func (s *Server) recordProviderCall(ctx context.Context, started time.Time) {
	m := s.inst.Metrics()
	m.ProviderAPICallsTotal.Add(ctx, 1)
	m.ProviderAPIDuration.Record(ctx, float64(time.Since(started))/float64(time.Millisecond))
}

// provider resolves a provider name, rejecting unknown names before any
// network IO happens.
func (s *Server) provider(name string) (providers.Provider, *APIError) {
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrInvalidRequest(fmt.Sprintf("unsupported provider %q", name))
	}
	return p, nil
}

// Initiate starts a login flow: it generates the PKCE state and the provider
// authorization URL. The client must retain state and codeVerifier and
// present both at callback; the service stores nothing.
func (s *Server) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	if req == nil || req.Provider == "" {
		return nil, ErrInvalidRequest("provider is required")
	}

	p, apiErr := s.provider(req.Provider)
	if apiErr != nil {
		return nil, apiErr
	}

	st := pkce.NewState(req.Provider)
	authURL := p.AuthorizationURL(st.State, st.CodeChallenge)

	s.inst.Metrics().LoginsInitiated.Add(ctx, 1)
	s.logger.Info("Login initiated",
		"provider", req.Provider,
		"state", util.SafeTruncate(st.State, 8))

	return &InitiateResponse{
		AuthURL:      authURL,
		State:        st.State,
		CodeVerifier: st.CodeVerifier,
	}, nil
}

// Callback completes a login flow: it validates the PKCE verifier, exchanges
// the authorization code, fetches and normalizes the provider profile,
// upserts the user, stores a session, and mints the service's own tokens.
func (s *Server) Callback(ctx context.Context, req *CallbackRequest) (*CallbackResponse, error) {
	if req == nil || req.Code == "" || req.State == "" || req.CodeVerifier == "" || req.Provider == "" {
		return nil, ErrInvalidRequest("code, state, codeVerifier and provider are required")
	}

	p, apiErr := s.provider(req.Provider)
	if apiErr != nil {
		return nil, apiErr
	}

	// A malformed verifier can never satisfy the challenge the provider
	// holds; reject it before spending a network round trip.
	if !pkce.ValidVerifier(req.CodeVerifier) {
		return nil, ErrInvalidRequest("invalid code verifier")
	}

	started := time.Now()
	providerToken, err := p.ExchangeCode(ctx, req.Code, req.CodeVerifier)
	s.recordProviderCall(ctx, started)
	if err != nil {
		s.logger.Error("Code exchange failed",
			"provider", req.Provider,
			"error", err)
		return nil, ErrOAuth("authentication with the identity provider failed")
	}

	started = time.Now()
	profile, err := p.FetchProfile(ctx, providerToken)
	s.recordProviderCall(ctx, started)
	if err != nil {
		s.logger.Error("Profile fetch failed",
			"provider", req.Provider,
			"error", err)
		return nil, ErrOAuth("authentication with the identity provider failed")
	}

	user, err := s.upsertLogin(ctx, profile)
	if err != nil {
		s.logger.Error("User upsert failed",
			"provider", req.Provider,
			"error", err)
		return nil, ErrServer("failed to persist user")
	}

	now := time.Now().UTC()
	sessionID, err := s.sessions.CreateSession(ctx, &storage.Session{
		UserID:               user.ID,
		Provider:             req.Provider,
		ProviderAccessToken:  providerToken.AccessToken,
		ProviderRefreshToken: providerToken.RefreshToken,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.config.SessionTTL),
	})
	if err != nil {
		s.logger.Error("Session create failed",
			"user_id", util.SafeTruncate(user.ID, 8),
			"error", err)
		return nil, ErrServer("failed to create session")
	}

	accessToken, err := s.tokens.IssueAccessToken(&providers.Profile{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Provider:  user.Provider,
	}, user.Tier)
	if err != nil {
		return nil, ErrServer("failed to issue access token")
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, ErrServer("failed to issue refresh token")
	}

	s.inst.Metrics().CallbacksProcessed.Add(ctx, 1)
	s.logger.Info("Login completed",
		"provider", req.Provider,
		"user_id", util.SafeTruncate(user.ID, 8),
		"session_id", util.SafeTruncate(sessionID, 8))

	return &CallbackResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL() / time.Second),
		User:         userPayload(user),
	}, nil
}

// upsertLogin creates the stored user on first login for an email and
// refreshes profile fields plus lastLoginAt on repeat logins. A returning
// user keeps their original ID and tier even when logging in through a
// different provider with the same email.
func (s *Server) upsertLogin(ctx context.Context, profile *providers.Profile) (*storage.User, error) {
	now := time.Now().UTC()

	existing, err := s.users.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		existing.Name = profile.Name
		existing.AvatarURL = profile.AvatarURL
		existing.Provider = profile.Provider
		existing.LastLoginAt = now
		if err := s.users.UpsertUser(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case errors.Is(err, storage.ErrUserNotFound):
		user := &storage.User{
			ID:          profile.ID,
			Email:       profile.Email,
			Name:        profile.Name,
			AvatarURL:   profile.AvatarURL,
			Provider:    profile.Provider,
			Tier:        storage.TierFree,
			CreatedAt:   now,
			LastLoginAt: now,
		}
		if err := s.users.UpsertUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	default:
		return nil, err
	}
}

// Refresh reissues an access token from a still-valid refresh token. The
// stored session is untouched.
func (s *Server) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	if req == nil || req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refreshToken is required")
	}

	claims, err := s.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.logger.Info("Refresh token rejected", "error", err)
		return nil, ErrUnauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnauthorized("invalid or expired refresh token")
		}
		s.logger.Error("User lookup failed during refresh", "error", err)
		return nil, ErrServer("failed to load user")
	}

	accessToken, err := s.tokens.IssueAccessToken(&providers.Profile{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Provider:  user.Provider,
	}, user.Tier)
	if err != nil {
		return nil, ErrServer("failed to issue access token")
	}

	s.inst.Metrics().TokensRefreshed.Add(ctx, 1)

	return &RefreshResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// Logout deletes the caller's session and, where the provider supports it,
// revokes the provider token. It always succeeds: an invalid or expired
// access token means the caller is already as logged out as we can make
// them. Issued access tokens stay valid until exp; there is no revocation
// list.
func (s *Server) Logout(ctx context.Context, req *LogoutRequest) (*LogoutResponse, error) {
	resp := &LogoutResponse{Success: true}
	if req == nil || req.AccessToken == "" {
		return resp, nil
	}

	claims, err := s.tokens.VerifyAccessToken(req.AccessToken)
	if err != nil {
		s.logger.Debug("Logout with invalid access token", "error", err)
		return resp, nil
	}

	s.revokeProviderToken(ctx, claims.Subject)

	if err := s.sessions.DeleteUserSessions(ctx, claims.Subject); err != nil {
		s.logger.Warn("Session delete failed during logout",
			"user_id", util.SafeTruncate(claims.Subject, 8),
			"error", err)
		return resp, nil
	}

	s.inst.Metrics().Logouts.Add(ctx, 1)
	s.logger.Info("Logout completed", "user_id", util.SafeTruncate(claims.Subject, 8))
	return resp, nil
}

// revokeProviderToken makes a best-effort attempt to revoke the provider
// access token held in the user's session. Failures are logged and ignored;
// the session delete that follows is what ends the login.
func (s *Server) revokeProviderToken(ctx context.Context, userID string) {
	session, err := s.sessions.GetSessionByUser(ctx, userID)
	if err != nil {
		return
	}
	p, ok := s.providers[session.Provider]
	if !ok || session.ProviderAccessToken == "" {
		return
	}
	if err := p.RevokeToken(ctx, session.ProviderAccessToken); err != nil {
		if !errors.Is(err, providers.ErrRevocationUnsupported) {
			s.logger.Warn("Provider token revocation failed",
				"provider", session.Provider,
				"error", err)
		}
	}
}

// Profile returns the stored user identified by a valid access token. Tier
// reflects the store, not the token, so an upgrade shows up without waiting
// for the access token to rotate.
func (s *Server) Profile(ctx context.Context, accessToken string) (*UserPayload, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized("access token is required")
	}

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		s.logger.Info("Access token rejected", "error", err)
		return nil, ErrUnauthorized("invalid or expired access token")
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUnauthorized("invalid or expired access token")
		}
		s.logger.Error("User lookup failed for profile", "error", err)
		return nil, ErrServer("failed to load profile")
	}

	return userPayload(user), nil
}

func userPayload(user *storage.User) *UserPayload {
	return &UserPayload{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Avatar:   user.AvatarURL,
		Provider: user.Provider,
		Tier:     user.Tier,
	}
}
