package edgeauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/wavecast/edgeauth/security"
)

// maxRequestBody bounds request bodies. Auth payloads are tiny; anything
// near this limit is abuse.
const maxRequestBody = 1 << 20

// Handler returns the HTTP handler exposing the five authentication
// operations:
//
//	POST /auth/initiate
//	POST /auth/callback
//	POST /auth/refresh
//	POST /auth/logout
//	GET  /auth/profile
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/initiate", s.handleInitiate)
	mux.HandleFunc("/auth/callback", s.handleCallback)
	mux.HandleFunc("/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/auth/profile", s.handleProfile)
	return mux
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	if !s.beginMutating(w, r, endpointInitiate) {
		return
	}
	var req InitiateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.Initiate(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.beginMutating(w, r, endpointCallback) {
		return
	}
	var req CallbackRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.Callback(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.beginMutating(w, r, endpointRefresh) {
		return
	}
	var req RefreshRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.Refresh(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.beginMutating(w, r, endpointLogout) {
		return
	}
	var req LogoutRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.Logout(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	security.SetSecurityHeaders(w, s.config.PublicURL)
	if r.Method != http.MethodGet {
		s.writeError(w, ErrInvalidRequest("method not allowed"))
		return
	}

	accessToken, ok := bearerToken(r)
	if !ok {
		s.writeError(w, ErrUnauthorized("missing bearer token"))
		return
	}

	resp, err := s.Profile(r.Context(), accessToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// beginMutating applies the shared preamble for the four state-mutating
// endpoints: security headers, method check, and the rate limiter. Returns
// false when the response has already been written.
func (s *Server) beginMutating(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	security.SetSecurityHeaders(w, s.config.PublicURL)
	if r.Method != http.MethodPost {
		s.writeError(w, ErrInvalidRequest("method not allowed"))
		return false
	}

	if s.limiter != nil {
		clientIP := security.GetClientIP(r, s.config.TrustProxy, s.config.TrustedProxyCount)
		decision := s.limiter.Check(r.Context(), endpoint, clientIP)
		if !decision.Allowed {
			s.inst.Metrics().RateLimitExceeded.Add(r.Context(), 1)
			s.writeError(w, ErrRateLimited(decision.RetryAfter))
			return false
		}
	}
	return true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, ErrInvalidRequest("invalid JSON body"))
		return false
	}
	return true
}

// bearerToken extracts the access token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError serializes any error into the uniform envelope. Non-API errors
// are masked as generic server errors so internals never leak.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error("Unclassified handler error", "error", err)
		apiErr = ErrServer("internal server error")
	}

	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	s.writeJSON(w, apiErr.Status, apiErr)
}
