package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/sessionauth/jwt"
)

// LogoutSessionStore is the subset of the session cache used by logout flows.
type LogoutSessionStore interface {
	Revoke(ctx context.Context, userID string) (bool, error)
	RevokeToken(ctx context.Context, jti string) (bool, error)
}

// LogoutErrors carries host-level sentinel errors used by logout flows.
type LogoutErrors struct {
	EngineNotReady   error
	InvalidArgument  error
	TokenInvalid     error
	StoreUnavailable error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	SessionStore LogoutSessionStore

	Errors LogoutErrors
}

// LogoutByAccessResult reports which session a logout targeted.
type LogoutByAccessResult struct {
	UserID  string
	JTI     string
	Revoked bool
	Err     error
}

// RunLogoutByAccessToken revokes the session a verified token belongs to.
// Logging out an already revoked token succeeds with Revoked=false.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	if deps.ParseAccess == nil || deps.SessionStore == nil {
		return LogoutByAccessResult{Err: deps.Errors.EngineNotReady}
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{Err: fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err)}
	}
	if strings.TrimSpace(claims.ID) == "" {
		return LogoutByAccessResult{UserID: claims.Subject, Err: fmt.Errorf("%w: token has no jti", deps.Errors.TokenInvalid)}
	}

	revoked, err := deps.SessionStore.RevokeToken(ctx, claims.ID)
	if err != nil {
		return LogoutByAccessResult{
			UserID: claims.Subject,
			JTI:    claims.ID,
			Err:    wrapStoreError(deps.Errors.StoreUnavailable, err),
		}
	}

	return LogoutByAccessResult{
		UserID:  claims.Subject,
		JTI:     claims.ID,
		Revoked: revoked,
	}
}

// RunRevokeUser deletes the session of userID and its revocation index entry.
func RunRevokeUser(ctx context.Context, userID string, deps LogoutDeps) (bool, error) {
	if deps.SessionStore == nil {
		return false, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("%w: user id is required", deps.Errors.InvalidArgument)
	}

	revoked, err := deps.SessionStore.Revoke(ctx, userID)
	if err != nil {
		return false, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}
	return revoked, nil
}
