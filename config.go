package edgeauth

import (
	"log/slog"
	"time"

	"github.com/wavecast/edgeauth/security"
	"github.com/wavecast/edgeauth/storage"
)

// Default per-endpoint rate limits. Values are deliberately conservative:
// login endpoints drive outbound provider calls and must not be a free
// amplification vector.
var (
	DefaultInitiateLimit = security.Limit{Requests: 10, Window: time.Minute}
	DefaultCallbackLimit = security.Limit{Requests: 10, Window: time.Minute}
	DefaultRefreshLimit  = security.Limit{Requests: 30, Window: time.Minute}
	DefaultLogoutLimit   = security.Limit{Requests: 10, Window: time.Minute}
)

// Config holds server configuration.
type Config struct {
	// PublicURL is the externally visible base URL of the service. Used only
	// to decide whether HSTS headers apply.
	PublicURL string

	// SessionTTL is the lifetime of stored sessions (default 30 days).
	SessionTTL time.Duration

	// TrustProxy enables client IP extraction from X-Forwarded-For and
	// X-Real-IP. Enable only behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is how many proxies to trust from the right of
	// X-Forwarded-For (default 1 when TrustProxy is set).
	TrustedProxyCount int

	// Rate limits per endpoint. A zero limit falls back to the default;
	// DisableRateLimiting turns the limiter off entirely.
	InitiateLimit       security.Limit
	CallbackLimit       security.Limit
	RefreshLimit        security.Limit
	LogoutLimit         security.Limit
	DisableRateLimiting bool
}

// applyDefaults fills in secure defaults for unset fields.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.SessionTTL == 0 {
		config.SessionTTL = storage.DefaultSessionTTL
	}
	if config.InitiateLimit == (security.Limit{}) {
		config.InitiateLimit = DefaultInitiateLimit
	}
	if config.CallbackLimit == (security.Limit{}) {
		config.CallbackLimit = DefaultCallbackLimit
	}
	if config.RefreshLimit == (security.Limit{}) {
		config.RefreshLimit = DefaultRefreshLimit
	}
	if config.LogoutLimit == (security.Limit{}) {
		config.LogoutLimit = DefaultLogoutLimit
	}
	if config.DisableRateLimiting {
		logger.Warn("Rate limiting is disabled; do not run this configuration in production")
	}
	return config
}
