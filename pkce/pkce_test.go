package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestNewState(t *testing.T) {
	st := NewState("google")

	if st.Provider != "google" {
		t.Errorf("Provider = %q, want %q", st.Provider, "google")
	}
	if len(st.CodeVerifier) < MinVerifierLength {
		t.Errorf("CodeVerifier length = %d, want >= %d", len(st.CodeVerifier), MinVerifierLength)
	}
	if !ValidVerifier(st.CodeVerifier) {
		t.Errorf("CodeVerifier %q is not RFC 7636 valid", st.CodeVerifier)
	}
	if st.State == "" {
		t.Error("State is empty")
	}
	if st.State == st.CodeVerifier {
		t.Error("State and CodeVerifier must be independent random values")
	}
	if st.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if st.CodeChallenge != Challenge(st.CodeVerifier) {
		t.Error("CodeChallenge does not match Challenge(CodeVerifier)")
	}
}

func TestNewState_Unique(t *testing.T) {
	a := NewState("github")
	b := NewState("github")

	if a.CodeVerifier == b.CodeVerifier {
		t.Error("two states produced the same verifier")
	}
	if a.State == b.State {
		t.Error("two states produced the same CSRF state")
	}
}

func TestChallenge_Encoding(t *testing.T) {
	challenge := Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")

	// base64url without padding, per RFC 7636
	if strings.ContainsAny(challenge, "+/=") {
		t.Errorf("Challenge %q contains non-base64url characters", challenge)
	}

	sum := sha256.Sum256([]byte("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if challenge != want {
		t.Errorf("Challenge = %q, want %q", challenge, want)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		st := NewState("google")
		if !Verify(st.CodeVerifier, st.CodeChallenge) {
			t.Fatalf("Verify(%q) = false for its own challenge", st.CodeVerifier)
		}
	}
}

func TestVerify_Mismatch(t *testing.T) {
	a := NewState("google")
	b := NewState("google")

	if Verify(a.CodeVerifier, b.CodeChallenge) {
		t.Error("a verifier must not validate against another state's challenge")
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	valid := NewState("google")

	tests := []struct {
		name      string
		verifier  string
		challenge string
	}{
		{"empty verifier", "", valid.CodeChallenge},
		{"empty challenge", valid.CodeVerifier, ""},
		{"both empty", "", ""},
		{"verifier too short", strings.Repeat("a", MinVerifierLength-1), valid.CodeChallenge},
		{"verifier too long", strings.Repeat("a", MaxVerifierLength+1), valid.CodeChallenge},
		{"invalid characters", strings.Repeat("a", 40) + "+/=", valid.CodeChallenge},
		{"whitespace", strings.Repeat("a", 42) + " ", valid.CodeChallenge},
		{"truncated challenge", valid.CodeVerifier, valid.CodeChallenge[:10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(tt.verifier, tt.challenge) {
				t.Errorf("Verify(%q, %q) = true, want false", tt.verifier, tt.challenge)
			}
		})
	}
}

func TestValidVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		want     bool
	}{
		{"minimum length", strings.Repeat("a", 43), true},
		{"maximum length", strings.Repeat("a", 128), true},
		{"all allowed specials", strings.Repeat("-._~", 11), true},
		{"too short", strings.Repeat("a", 42), false},
		{"too long", strings.Repeat("a", 129), false},
		{"plus sign", strings.Repeat("a", 42) + "+", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidVerifier(tt.verifier); got != tt.want {
				t.Errorf("ValidVerifier(%q) = %v, want %v", tt.verifier, got, tt.want)
			}
		})
	}
}
