package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels identify the error kind regardless of the wire code, so callers can use
// errors.Is even where several kinds share an OAuth error code.
var (
	ErrValidation           = errors.New("validation error")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenTypeMismatch    = errors.New("token type mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrExpiredTimestamp     = errors.New("expired timestamp")
	ErrReplayedNonce        = errors.New("replayed nonce")
	ErrLockedOut            = errors.New("locked out")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrClientMismatch       = errors.New("client mismatch")
	ErrInvalidCodeVerifier  = errors.New("invalid code verifier")
	ErrUnsupportedGrant     = errors.New("unsupported grant")
	ErrInvalidClient        = errors.New("invalid client")
	ErrUnauthorizedClient   = errors.New("unauthorized client")
	ErrRateLimited          = errors.New("rate limited")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrPayloadTooLarge      = errors.New("payload too large")
)

const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidPassword      = "invalid_password"
	CodeAuthenticationFailed = "authentication_failed"
	CodeInvalidCredentials   = "invalid_credentials"
	CodeInvalidToken         = "invalid_token"
	CodeTokenTypeMismatch    = "token_type_mismatch"
	CodeInvalidSignature     = "invalid_signature"
	CodeExpiredTimestamp     = "expired_timestamp"
	CodeReplayedNonce        = "replayed_nonce"
	CodeLockedOut            = "locked_out"
	CodePermissionDenied     = "permission_denied"
	CodeInvalidGrant         = "invalid_grant"
	CodeInvalidClient        = "invalid_client"
	CodeUnauthorizedClient   = "unauthorized_client"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeRateLimited          = "rate_limited"
	CodeNotFound             = "not_found"
	CodeAlreadyExists        = "already_exists"
	CodePayloadTooLarge      = "payload_too_large"
	CodeServerError          = "server_error"
)

// DefaultRealm is used for WWW-Authenticate when no challenge was attached.
const DefaultRealm = "api"

type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	HTTPStatus  int    `json:"-"`
	// Challenge is the WWW-Authenticate value sent with 401 responses.
	Challenge string `json:"-"`
	// RetryAfter is the number of seconds sent with 429 responses.
	RetryAfter int   `json:"-"`
	Err        error `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// WithChallenge returns a copy of e carrying `<scheme> realm="<realm>"`.
func (e *APIError) WithChallenge(scheme string, realm string) *APIError {
	if realm == "" {
		realm = DefaultRealm
	}

	out := *e
	out.Challenge = Challenge(scheme, realm)
	return &out
}

func Challenge(scheme string, realm string) string {
	return fmt.Sprintf(`%s realm="%s"`, scheme, realm)
}

func New(code string, description string, status int, kind error) *APIError {
	return &APIError{Code: code, Description: description, HTTPStatus: status, Err: kind}
}

func Validation(description string) *APIError {
	return New(CodeInvalidRequest, description, http.StatusBadRequest, ErrValidation)
}

// PasswordRejected reports the first password-policy rule that failed.
func PasswordRejected(rule string) *APIError {
	return New(CodeInvalidPassword, rule, http.StatusBadRequest, ErrValidation)
}

func AuthenticationFailed(description string) *APIError {
	return New(CodeAuthenticationFailed, description, http.StatusUnauthorized, ErrAuthenticationFailed)
}

func InvalidCredentials() *APIError {
	return New(CodeInvalidCredentials, "invalid username or password", http.StatusUnauthorized, ErrInvalidCredentials)
}

func InvalidToken() *APIError {
	return New(CodeInvalidToken, "the access token is invalid or expired", http.StatusUnauthorized, ErrInvalidToken)
}

func TokenTypeMismatch() *APIError {
	return New(CodeTokenTypeMismatch, "the presented token cannot be used here", http.StatusUnauthorized, ErrTokenTypeMismatch)
}

func InvalidSignature() *APIError {
	return New(CodeInvalidSignature, "invalid request signature", http.StatusUnauthorized, ErrInvalidSignature)
}

func ExpiredTimestamp() *APIError {
	return New(CodeExpiredTimestamp, "request timestamp is outside the accepted window", http.StatusUnauthorized, ErrExpiredTimestamp)
}

func ReplayedNonce() *APIError {
	return New(CodeReplayedNonce, "nonce has already been used", http.StatusUnauthorized, ErrReplayedNonce)
}

func LockedOut() *APIError {
	return New(CodeLockedOut, "account is locked due to too many failed login attempts", http.StatusUnauthorized, ErrLockedOut)
}

func PermissionDenied(description string) *APIError {
	if description == "" {
		description = "you do not have permission to perform this action"
	}
	return New(CodePermissionDenied, description, http.StatusForbidden, ErrPermissionDenied)
}

func InvalidGrant(description string) *APIError {
	return New(CodeInvalidGrant, description, http.StatusBadRequest, ErrInvalidGrant)
}

func ClientMismatch() *APIError {
	return New(CodeInvalidGrant, "grant was issued to another client", http.StatusBadRequest, ErrClientMismatch)
}

func InvalidCodeVerifier(description string) *APIError {
	return New(CodeInvalidGrant, description, http.StatusBadRequest, ErrInvalidCodeVerifier)
}

func UnsupportedGrant(description string) *APIError {
	return New(CodeUnsupportedGrantType, description, http.StatusBadRequest, ErrUnsupportedGrant)
}

func InvalidClient(description string) *APIError {
	return New(CodeInvalidClient, description, http.StatusUnauthorized, ErrInvalidClient)
}

func UnauthorizedClient(description string) *APIError {
	return New(CodeUnauthorizedClient, description, http.StatusUnauthorized, ErrUnauthorizedClient)
}

func RateLimited(retryAfter int) *APIError {
	e := New(CodeRateLimited, "request was throttled", http.StatusTooManyRequests, ErrRateLimited)
	e.RetryAfter = retryAfter
	return e
}

func NotFound(resource string) *APIError {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound, ErrNotFound)
}

func AlreadyExists(resource string) *APIError {
	return New(CodeAlreadyExists, resource+" already exists", http.StatusConflict, ErrAlreadyExists)
}

func PayloadTooLarge(limit int64) *APIError {
	return New(CodePayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge, ErrPayloadTooLarge)
}

// As unwraps err into an *APIError.
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
