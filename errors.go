package sessionauth

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/sessionauth/session"
)

var (
	// ErrInvalidArgument is returned for missing or malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidCredentials is returned for every credential failure with the same message.
	ErrInvalidCredentials = errors.New("password incorrect")
	// ErrTokenInvalid is returned when a bearer token fails signature, issuer, audience or expiry checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenNotActive is returned when a verified token is no longer in the revocation index.
	ErrTokenNotActive = errors.New("token not active")
	// ErrStoreConflict is returned by a CredentialStore when the username is taken.
	ErrStoreConflict = errors.New("store conflict")
	// ErrStoreUnavailable wraps every credential store or session cache failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUserNotFound is returned by a CredentialStore for an unknown username.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned by a SessionCache when no live session exists.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrLoginRateLimited is returned when the failed-login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Error kinds returned by [ErrorKind].
const (
	KindInvalidArgument    = "invalid_argument"
	KindInvalidCredentials = "invalid_credentials"
	KindTokenNotActive     = "token_not_active"
	KindRateLimited        = "rate_limited"
	KindInternal           = "internal"
)

// ErrorKind classifies err for transport mapping. Unknown errors, store
// conflicts and store failures are all KindInternal.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrTokenInvalid):
		return KindInvalidCredentials
	case errors.Is(err, ErrTokenNotActive):
		return KindTokenNotActive
	case errors.Is(err, ErrLoginRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch ErrorKind(err) {
	case "":
		return http.StatusOK
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindTokenNotActive:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
