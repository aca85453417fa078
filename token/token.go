// Package token issues and verifies the service's own signed access and
// refresh tokens. Tokens are HMAC-SHA256 JWTs with a fixed issuer and
// audience; validity is purely a function of signature and expiry, so
// verification needs no storage round trip. The flip side is that an issued
// token stays valid until its expiry even after the owning session is
// deleted - an accepted trade-off of stateless verification.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wavecast/edgeauth/providers"
)

// Token type claim values, distinguishing access from refresh tokens so one
// can never be presented in place of the other.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// MinSecretLength is the minimum HMAC secret size: 256 bits, matching the
// HS256 hash width.
const MinSecretLength = 32

// Typed verification failures. Callers use these to distinguish "should
// refresh" (expired) from "must re-authenticate" (anything else); the
// distinction is for logging and control flow only and is never exposed to
// the end client in detail.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrWrongTokenType   = errors.New("wrong token type")
)

// Claims is the payload carried by both token kinds. Refresh tokens carry
// only the registered claims and the token type; access tokens additionally
// carry the identity fields needed to serve requests without a user lookup.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Tier      string `json:"tier,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Config holds token service configuration.
type Config struct {
	// Secret is the HMAC signing key (required, at least 32 bytes).
	Secret []byte

	// Issuer is the value of the "iss" claim (required).
	Issuer string

	// Audience is the value of the "aud" claim (required).
	Audience string

	// AccessTTL is the access token lifetime (default 1 hour).
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime (default 30 days).
	RefreshTTL time.Duration
}

// Service mints and verifies tokens.
type Service struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// New creates a token service.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("audience is required")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Service{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken mints a signed access token for a user profile and tier.
func (s *Service) IssueAccessToken(profile *providers.Profile, tier string) (string, error) {
	if profile == nil || profile.ID == "" {
		return "", fmt.Errorf("profile with a user ID is required")
	}

	now := s.now()
	claims := &Claims{
		Email:     profile.Email,
		Name:      profile.Name,
		Provider:  profile.Provider,
		Tier:      tier,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return s.sign(claims)
}

// IssueRefreshToken mints a signed refresh token carrying only the user ID.
func (s *Service) IssueRefreshToken(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	now := s.now()
	claims := &Claims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	return s.sign(claims)
}

func (s *Service) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken verifies signature, issuer, audience, expiry, and token
// type of an access token and returns its claims.
func (s *Service) VerifyAccessToken(raw string) (*Claims, error) {
	return s.verify(raw, TypeAccess)
}

// VerifyRefreshToken verifies a refresh token and returns its claims.
func (s *Service) VerifyRefreshToken(raw string) (*Claims, error) {
	return s.verify(raw, TypeRefresh)
}

func (s *Service) verify(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyError(err)
	}

	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.TokenType, wantType)
	}
	return claims, nil
}

// classifyError maps jwt parse errors onto the package's typed errors with a
// human-readable reason.
func classifyError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: expiry elapsed", ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature mismatch", ErrSignatureInvalid)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: issuer mismatch", ErrTokenMalformed)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: audience mismatch", ErrTokenMalformed)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: used before issued", ErrTokenMalformed)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
