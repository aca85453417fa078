package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavecast/edgeauth/storage"
)

// Limit describes a fixed-window rate limit: at most Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long until the window resets. Only meaningful when
	// the request was denied.
	RetryAfter time.Duration
}

// FixedWindowLimiter enforces per-client fixed-window rate limits on top of
// a shared counter store. Because the counters live in the store rather than
// process memory, the limit holds across any number of service instances,
// including instances that exist only for the lifetime of one request.
//
// The window check is a plain INCR, not a transaction. Two concurrent
// requests racing past the threshold may both be admitted; the window
// boundary is approximate by design of the fixed-window algorithm.
type FixedWindowLimiter struct {
	store  storage.RateLimitStore
	limits map[string]Limit
	logger *slog.Logger
}

// NewFixedWindowLimiter creates a limiter backed by store. Endpoints without
// a configured limit are never throttled.
func NewFixedWindowLimiter(store storage.RateLimitStore, logger *slog.Logger) *FixedWindowLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FixedWindowLimiter{
		store:  store,
		limits: make(map[string]Limit),
		logger: logger,
	}
}

// SetLimit configures the limit for an endpoint. Zero Requests or Window
// removes the limit.
func (l *FixedWindowLimiter) SetLimit(endpoint string, limit Limit) {
	if limit.Requests <= 0 || limit.Window <= 0 {
		delete(l.limits, endpoint)
		return
	}
	l.limits[endpoint] = limit
}

// Check records one request from clientIP against the endpoint's limit and
// decides whether it may proceed. Store failures fail open: an unreachable
// counter store degrades rate limiting, never availability.
func (l *FixedWindowLimiter) Check(ctx context.Context, endpoint, clientIP string) Decision {
	limit, ok := l.limits[endpoint]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	key := fmt.Sprintf("%s:%s", endpoint, clientIP)
	count, resetAt, err := l.store.IncrWindow(ctx, key, limit.Window)
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, allowing request",
			"endpoint", endpoint,
			"error", err)
		return Decision{Allowed: true, Remaining: -1}
	}

	remaining := limit.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(limit.Requests) {
		retryAfter := time.Until(resetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.logger.Warn("Rate limit exceeded",
			"endpoint", endpoint,
			"client_ip", clientIP,
			"count", count,
			"limit", limit.Requests)
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true, Remaining: remaining}
}
