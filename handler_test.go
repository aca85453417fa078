package edgeauth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wavecast/edgeauth/security"
)

func newTestHandler(t *testing.T, cfg *Config) (http.Handler, *testFixture) {
	t.Helper()
	f := newTestFixture(t, nil)
	if cfg != nil {
		applyDefaults(cfg, f.server.logger)
		f.server.config = cfg
		if f.server.limiter != nil {
			f.server.limiter = security.NewFixedWindowLimiter(f.store, f.server.logger)
			f.server.limiter.SetLimit(endpointInitiate, cfg.InitiateLimit)
			f.server.limiter.SetLimit(endpointCallback, cfg.CallbackLimit)
			f.server.limiter.SetLimit(endpointRefresh, cfg.RefreshLimit)
			f.server.limiter.SetLimit(endpointLogout, cfg.LogoutLimit)
		}
	}
	return f.server.Handler(), f
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:50000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandlerInitiateFlow(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := postJSON(t, handler, "/auth/initiate", InitiateRequest{Provider: "mock"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("security headers missing, X-Content-Type-Options = %q", got)
	}

	var resp InitiateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.AuthURL == "" || resp.State == "" || resp.CodeVerifier == "" {
		t.Errorf("response = %+v, want all fields", resp)
	}
}

func TestHandlerErrorEnvelope(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := postJSON(t, handler, "/auth/initiate", InitiateRequest{Provider: "facebook"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["error"] != ErrorCodeInvalidRequest {
		t.Errorf("error = %v, want %q", envelope["error"], ErrorCodeInvalidRequest)
	}
	if envelope["message"] == "" || envelope["message"] == nil {
		t.Error("message missing from envelope")
	}
	if envelope["statusCode"] != float64(http.StatusBadRequest) {
		t.Errorf("statusCode = %v, want 400", envelope["statusCode"])
	}
	if _, ok := envelope["retryAfter"]; ok {
		t.Error("retryAfter present on a non-rate-limit error")
	}
}

func TestHandlerMalformedJSON(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/initiate", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	for _, path := range []string{"/auth/initiate", "/auth/callback", "/auth/refresh", "/auth/logout"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/profile", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /auth/profile status = %d, want 400", w.Code)
	}
}

func TestHandlerRateLimit(t *testing.T) {
	handler, _ := newTestHandler(t, &Config{
		InitiateLimit: security.Limit{Requests: 2, Window: time.Minute},
	})

	for i := 0; i < 2; i++ {
		w := postJSON(t, handler, "/auth/initiate", InitiateRequest{Provider: "mock"})
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, body = %s", i+1, w.Code, w.Body.String())
		}
	}

	w := postJSON(t, handler, "/auth/initiate", InitiateRequest{Provider: "mock"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}

	var envelope map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["error"] != ErrorCodeRateLimited {
		t.Errorf("error = %v, want %q", envelope["error"], ErrorCodeRateLimited)
	}
	if _, ok := envelope["retryAfter"]; !ok {
		t.Error("retryAfter missing from rate-limit envelope")
	}

	// Another endpoint is unaffected.
	w = postJSON(t, handler, "/auth/logout", LogoutRequest{})
	if w.Code != http.StatusOK {
		t.Errorf("logout after initiate limit status = %d, want 200", w.Code)
	}
}

func TestHandlerProfileBearer(t *testing.T) {
	handler, f := newTestHandler(t, nil)
	login := completeLogin(t, f)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var payload UserPayload
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ID != login.User.ID {
		t.Errorf("profile ID = %q, want %q", payload.ID, login.User.ID)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty bearer", "Bearer"},
		{"garbage token", "Bearer garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestHandlerEndToEnd(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := postJSON(t, handler, "/auth/initiate", InitiateRequest{Provider: "mock"})
	var initResp InitiateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("unmarshal initiate: %v", err)
	}

	w = postJSON(t, handler, "/auth/callback", CallbackRequest{
		Code:         "auth-code",
		State:        initResp.State,
		CodeVerifier: initResp.CodeVerifier,
		Provider:     "mock",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body = %s", w.Code, w.Body.String())
	}
	var cbResp CallbackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cbResp); err != nil {
		t.Fatalf("unmarshal callback: %v", err)
	}

	w = postJSON(t, handler, "/auth/refresh", RefreshRequest{RefreshToken: cbResp.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", w.Code, w.Body.String())
	}

	w = postJSON(t, handler, "/auth/logout", LogoutRequest{AccessToken: cbResp.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", w.Code, w.Body.String())
	}
	var logoutResp LogoutResponse
	if err := json.Unmarshal(w.Body.Bytes(), &logoutResp); err != nil {
		t.Fatalf("unmarshal logout: %v", err)
	}
	if !logoutResp.Success {
		t.Error("logout Success = false")
	}
}
