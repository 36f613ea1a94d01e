package sessionauth

import (
	"context"

	internalflows "github.com/MrEthical07/sessionauth/internal/flows"
)

// ExistingToken returns the live token of userID without writing anything.
// The bool result is false when the user has no session or it is within
// Session.MinReuseTTL of expiry.
func (e *Engine) ExistingToken(ctx context.Context, userID string) (Token, bool, error) {
	if e == nil || e.sessions == nil {
		return Token{}, false, ErrEngineNotReady
	}

	issued, ok, err := internalflows.RunExistingToken(ctx, userID, e.flows.Token)
	if err != nil || !ok {
		return Token{}, ok, err
	}
	return toToken(issued), true, nil
}

// CreateAccessToken signs a fresh token for userID and claims the user's
// session slot. When a concurrent caller claimed the slot first, the winner's
// token and remaining lifetime are returned instead.
func (e *Engine) CreateAccessToken(ctx context.Context, userID, username string) (Token, error) {
	if e == nil || e.sessions == nil {
		return Token{}, ErrEngineNotReady
	}

	issued, err := internalflows.RunCreateAccessToken(ctx, userID, username, e.flows.Token)
	if err != nil {
		return Token{}, err
	}
	return toToken(issued), nil
}

func toToken(t internalflows.IssuedToken) Token {
	return Token{
		Value:     t.Value,
		ExpiresIn: t.ExpiresIn,
		ExpiresAt: t.ExpiresAt,
	}
}
