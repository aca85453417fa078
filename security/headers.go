package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets security headers on authentication responses.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	// Prevent clickjacking.
	w.Header().Set("X-Frame-Options", "DENY")

	// Prevent MIME type sniffing.
	w.Header().Set("X-Content-Type-Options", "nosniff")

	// Strict policy for token endpoints: no inline scripts, no external
	// resources.
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// Don't leak referrer information.
	w.Header().Set("Referrer-Policy", "no-referrer")

	// HSTS only when the public URL is HTTPS.
	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Token responses must never be cached.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
