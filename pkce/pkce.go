// Package pkce implements the Proof Key for Code Exchange protocol (RFC 7636)
// used to bind an authorization code to the client that initiated the login.
//
// The service never persists PKCE material server-side: the verifier/challenge/
// state triple is handed to the client at initiate time and the client must
// return the state and verifier unmodified at callback time.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"golang.org/x/oauth2"
)

// ChallengeMethod is the only code challenge method this service uses.
// The deprecated "plain" method is deliberately not supported.
const ChallengeMethod = "S256"

// RFC 7636 bounds for code verifiers.
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// State holds the PKCE material for a single login attempt. It exists only
// long enough to correlate initiate with callback and must not be reused
// across two successful callbacks.
type State struct {
	State         string    `json:"state"`
	CodeVerifier  string    `json:"codeVerifier"`
	CodeChallenge string    `json:"codeChallenge"`
	Provider      string    `json:"provider"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewState generates a fresh verifier/challenge/state triple for a provider.
// The verifier and the CSRF state are independent random values, each with
// 256 bits of entropy.
func NewState(provider string) *State {
	verifier := oauth2.GenerateVerifier()
	return &State{
		State:         oauth2.GenerateVerifier(),
		CodeVerifier:  verifier,
		CodeChallenge: Challenge(verifier),
		Provider:      provider,
		CreatedAt:     time.Now().UTC(),
	}
}

// Challenge computes the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify reports whether verifier reproduces challenge. It fails closed:
// a malformed or out-of-range verifier is a verification failure, never an
// outcome a caller could mistake for success. The comparison is constant
// time to avoid leaking how many challenge bytes matched.
func Verify(verifier, challenge string) bool {
	if challenge == "" || !ValidVerifier(verifier) {
		return false
	}
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// ValidVerifier reports whether verifier satisfies the RFC 7636 length and
// character-set requirements: 43-128 characters of [A-Za-z0-9-._~].
func ValidVerifier(verifier string) bool {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	for _, ch := range verifier {
		if (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') &&
			ch != '-' && ch != '.' && ch != '_' && ch != '~' {
			return false
		}
	}
	return true
}
