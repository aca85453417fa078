package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
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

// userAPIStub serves /user and /user/emails fixtures.
func userAPIStub(t *testing.T, userBody, emailsBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gho_token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(userBody))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(emailsBody))
	})
	return httptest.NewServer(mux)
}

func TestFetchProfilePublicEmail(t *testing.T) {
	srv := userAPIStub(t,
		`{"id":583231,"login":"octocat","name":"The Octocat","email":"octocat@github.com","avatar_url":"https://avatars.githubusercontent.com/u/583231"}`,
		`[]`)
	defer srv.Close()

	p := newTestProvider(t)
	p.userURL = srv.URL + "/user"
	p.emailsURL = srv.URL + "/user/emails"

	profile, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "gho_token"})
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.ID != "github_583231" {
		t.Errorf("ID = %q, want %q", profile.ID, "github_583231")
	}
	if profile.Email != "octocat@github.com" {
		t.Errorf("Email = %q", profile.Email)
	}
	if profile.Name != "The Octocat" {
		t.Errorf("Name = %q", profile.Name)
	}
}

func TestFetchProfileEmailFallback(t *testing.T) {
	tests := []struct {
		name       string
		emailsBody string
		wantEmail  string
		wantErr    bool
	}{
		{
			name:       "primary verified wins",
			emailsBody: `[{"email":"secondary@example.com","primary":false,"verified":true},{"email":"primary@example.com","primary":true,"verified":true}]`,
			wantEmail:  "primary@example.com",
		},
		{
			name:       "unverified primary skipped",
			emailsBody: `[{"email":"primary@example.com","primary":true,"verified":false},{"email":"verified@example.com","primary":false,"verified":true}]`,
			wantEmail:  "verified@example.com",
		},
		{
			name:       "nothing verified is an error",
			emailsBody: `[{"email":"unverified@example.com","primary":true,"verified":false}]`,
			wantErr:    true,
		},
		{
			name:       "no emails at all is an error",
			emailsBody: `[]`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := userAPIStub(t, `{"id":583231,"login":"octocat","name":"The Octocat","email":""}`, tt.emailsBody)
			defer srv.Close()

			p := newTestProvider(t)
			p.userURL = srv.URL + "/user"
			p.emailsURL = srv.URL + "/user/emails"

			profile, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "gho_token"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FetchProfile() = %+v, want error for unresolvable email", profile)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchProfile() error = %v", err)
			}
			if profile.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", profile.Email, tt.wantEmail)
			}
		})
	}
}

func TestFetchProfileNameFallsBackToLogin(t *testing.T) {
	srv := userAPIStub(t, `{"id":583231,"login":"octocat","name":"","email":"octocat@github.com"}`, `[]`)
	defer srv.Close()

	p := newTestProvider(t)
	p.userURL = srv.URL + "/user"
	p.emailsURL = srv.URL + "/user/emails"

	profile, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "gho_token"})
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.Name != "octocat" {
		t.Errorf("Name = %q, want login fallback", profile.Name)
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

func TestRevokeTokenUnsupported(t *testing.T) {
	p := newTestProvider(t)
	err := p.RevokeToken(context.Background(), "gho_token")
	if !errors.Is(err, providers.ErrRevocationUnsupported) {
		t.Errorf("RevokeToken() error = %v, want ErrRevocationUnsupported", err)
	}
}
