package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/sessionauth/jwt"
)

// GateFailureKind classifies authentication failures for root-level mapping.
type GateFailureKind int

const (
	GateFailureNone GateFailureKind = iota
	GateFailureTokenInvalid
	GateFailureTokenNotActive
	GateFailureStoreUnavailable
)

// GateResult returns either the verified claims or a classified failure.
type GateResult struct {
	Failure GateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// GateErrors carries host-level sentinel errors used by the revocation gate.
type GateErrors struct {
	EngineNotReady   error
	TokenInvalid     error
	TokenNotActive   error
	StoreUnavailable error
}

// GateDeps captures authentication dependencies.
type GateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
	IsActive    func(context.Context, string) (bool, error)

	Errors GateErrors
}

// RunAuthenticate verifies tokenStr cryptographically and then consults the
// revocation index.
func RunAuthenticate(ctx context.Context, tokenStr string, deps GateDeps) GateResult {
	if deps.ParseAccess == nil || deps.IsActive == nil {
		return GateResult{Failure: GateFailureTokenInvalid, Err: deps.Errors.EngineNotReady}
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return GateResult{
			Failure: GateFailureTokenInvalid,
			Err:     fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err),
		}
	}

	return RunRevocationGate(ctx, claims, deps)
}

// RunRevocationGate admits claims only when their jti is still live.
// A blank jti or an absent index entry yields GateFailureTokenNotActive;
// index failures never admit the request.
func RunRevocationGate(ctx context.Context, claims *jwt.AccessClaims, deps GateDeps) GateResult {
	if claims == nil || strings.TrimSpace(claims.ID) == "" {
		return GateResult{Failure: GateFailureTokenNotActive, Err: deps.Errors.TokenNotActive}
	}
	if deps.IsActive == nil {
		return GateResult{Failure: GateFailureStoreUnavailable, Err: deps.Errors.EngineNotReady}
	}

	active, err := deps.IsActive(ctx, claims.ID)
	if err != nil {
		return GateResult{
			Failure: GateFailureStoreUnavailable,
			Err:     wrapStoreError(deps.Errors.StoreUnavailable, err),
		}
	}
	if !active {
		return GateResult{Failure: GateFailureTokenNotActive, Err: deps.Errors.TokenNotActive}
	}

	return GateResult{Claims: claims}
}
