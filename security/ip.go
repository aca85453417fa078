package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP address from the request.
// Supports X-Forwarded-For and X-Real-IP headers when behind a proxy.
//
// Only enable trustProxy when behind a trusted reverse proxy. The
// X-Forwarded-For format is "client, proxy1, proxy2, ..."; trustedProxyCount
// specifies how many proxies to trust from the right, which prevents
// X-Forwarded-For spoofing in multi-proxy setups.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := extractIPFromXRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF parses the X-Forwarded-For header and extracts the client
// IP. The rightmost IPs are the trusted proxies we control; the client IP is
// the entry just before them.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	if len(ips) == 0 {
		return ""
	}

	clientIndex := calculateClientIPIndex(len(ips), trustedProxyCount)
	clientIP := strings.TrimSpace(ips[clientIndex])

	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

// calculateClientIPIndex determines the index of the client IP in the
// X-Forwarded-For list. With trustedProxyCount=0 one trusted proxy is
// assumed. If there are not enough entries, the leftmost IP is used.
func calculateClientIPIndex(numIPs, trustedProxyCount int) int {
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}

	clientIndex := numIPs - proxyCount - 1
	if clientIndex < 0 {
		return 0
	}
	return clientIndex
}

// extractIPFromXRealIP validates and returns the X-Real-IP header value.
func extractIPFromXRealIP(xrip string) string {
	xrip = strings.TrimSpace(xrip)
	if xrip != "" && net.ParseIP(xrip) != nil {
		return xrip
	}
	return ""
}

// extractIPFromRemoteAddr strips the port from RemoteAddr.
func extractIPFromRemoteAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	// RemoteAddr without a port (already a bare IP).
	if net.ParseIP(remoteAddr) != nil {
		return remoteAddr
	}
	return remoteAddr
}
