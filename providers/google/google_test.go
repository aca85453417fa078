package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/wavecast/edgeauth/providers"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://app.example.com/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p
}

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"missing client ID", &Config{ClientSecret: "s"}},
		{"missing client secret", &Config{ClientID: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Error("NewProvider() error = nil, want error")
			}
		})
	}
}

func TestAuthorizationURL(t *testing.T) {
	p := newTestProvider(t)

	rawURL := p.AuthorizationURL("csrf-state", "the-challenge")
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("AuthorizationURL() is not a URL: %v", err)
	}

	q := parsed.Query()
	if q.Get("state") != "csrf-state" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("code_challenge") != "the-challenge" {
		t.Errorf("code_challenge = %q", q.Get("code_challenge"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
}

func TestFetchProfile(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantID   string
		wantMail string
		wantErr  bool
	}{
		{
			name:     "v2 userinfo response",
			body:     `{"id":"110248495921238986420","email":"alice@gmail.com","name":"Alice","picture":"https://lh3.googleusercontent.com/a/photo"}`,
			wantID:   "google_110248495921238986420",
			wantMail: "alice@gmail.com",
		},
		{
			name:     "oidc response uses sub",
			body:     `{"sub":"110248495921238986420","email":"alice@gmail.com","name":"Alice"}`,
			wantID:   "google_110248495921238986420",
			wantMail: "alice@gmail.com",
		},
		{
			name:    "no user id",
			body:    `{"email":"alice@gmail.com"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer provider-token" {
					t.Errorf("Authorization = %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestProvider(t)
			p.userInfoURL = srv.URL

			profile, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "provider-token"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("FetchProfile() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchProfile() error = %v", err)
			}
			if profile.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", profile.ID, tt.wantID)
			}
			if profile.Email != tt.wantMail {
				t.Errorf("Email = %q, want %q", profile.Email, tt.wantMail)
			}
			if profile.Provider != "google" {
				t.Errorf("Provider = %q", profile.Provider)
			}
		})
	}
}

func TestFetchProfileUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal detail that must not leak"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.userInfoURL = srv.URL

	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "t"})
	if err == nil {
		t.Fatal("FetchProfile() error = nil, want error")
	}
	if strings.Contains(err.Error(), "must not leak") {
		t.Errorf("error leaks upstream body: %v", err)
	}
}

func TestExchangeCodeUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	p := newTestProvider(t)
	p.config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	_, err := p.ExchangeCode(context.Background(), "auth-code", "verifier")
	if !errors.Is(err, providers.ErrUpstreamUnavailable) {
		t.Errorf("ExchangeCode() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	// The endpoint answered; a rejected code is not an availability failure.
	_, err := p.ExchangeCode(context.Background(), "bad-code", "verifier")
	if err == nil {
		t.Fatal("ExchangeCode() error = nil, want error")
	}
	if errors.Is(err, providers.ErrUpstreamUnavailable) {
		t.Errorf("ExchangeCode() error = %v, want rejection distinct from ErrUpstreamUnavailable", err)
	}
}

func TestRevokeToken(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		gotBody = r.PostForm.Get("token")
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.revokeURL = srv.URL

	if err := p.RevokeToken(context.Background(), "ya29.revoke-me"); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if gotBody != "ya29.revoke-me" {
		t.Errorf("revoked token = %q", gotBody)
	}
}

func TestRevokeTokenUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestProvider(t)
	p.revokeURL = srv.URL

	if err := p.RevokeToken(context.Background(), "ya29.token"); err == nil {
		t.Error("RevokeToken() error = nil, want error")
	}
}
