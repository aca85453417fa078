package edgeauth

// InitiateRequest starts a login flow with an identity provider.
type InitiateRequest struct {
	Provider string `json:"provider"`
}

// InitiateResponse carries everything the client must retain until callback:
// the provider authorization URL to redirect to, and the state plus code
// verifier it must present back unmodified. The service holds none of it.
type InitiateResponse struct {
	AuthURL      string `json:"authUrl"`
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
}

// CallbackRequest completes a login flow with the authorization code the
// provider redirected back with.
type CallbackRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
	Provider     string `json:"provider"`
}

// CallbackResponse carries the freshly minted application tokens.
type CallbackResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         *UserPayload `json:"user"`
}

// RefreshRequest exchanges a still-valid refresh token for a new access
// token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse carries the reissued access token.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// LogoutRequest ends the caller's session.
type LogoutRequest struct {
	AccessToken string `json:"accessToken"`
}

// LogoutResponse always reports success; logout is idempotent.
type LogoutResponse struct {
	Success bool `json:"success"`
}

// UserPayload is the caller-facing view of a stored user.
type UserPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
}
