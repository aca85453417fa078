package edgeauth

import (
	"fmt"
	"net/http"
	"time"
)

// API error codes returned in the error envelope.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeUnauthorized   = "unauthorized"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeOAuthError     = "oauth_error"
	ErrorCodeServerError    = "server_error"
)

// APIError is the uniform error envelope returned by every handler:
// {error, message, statusCode}, plus retryAfter on rate-limit rejections.
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	Status     int    `json:"statusCode"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrInvalidRequest indicates the request is malformed or missing required
// parameters.
func ErrInvalidRequest(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeInvalidRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// ErrUnauthorized indicates a missing, expired, or otherwise invalid
// credential. The internal reason is logged, never returned.
func ErrUnauthorized(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// ErrRateLimited indicates the client exceeded an endpoint's request limit.
func ErrRateLimited(retryAfter time.Duration) *APIError {
	seconds := int(retryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return &APIError{
		Code:       ErrorCodeRateLimited,
		Message:    "too many requests, slow down",
		Status:     http.StatusTooManyRequests,
		RetryAfter: seconds,
	}
}

// ErrOAuth indicates a failure talking to the identity provider. Upstream
// error bodies are never included.
func ErrOAuth(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeOAuthError,
		Message: message,
		Status:  http.StatusBadGateway,
	}
}

// ErrServer indicates an internal failure, typically storage.
func ErrServer(message string) *APIError {
	return &APIError{
		Code:    ErrorCodeServerError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}
