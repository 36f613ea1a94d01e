package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessionauth/session"
)

// TokenSessionStore is the subset of the session cache used to issue tokens.
type TokenSessionStore interface {
	Get(ctx context.Context, userID string) (*session.Record, error)
	Claim(ctx context.Context, rec *session.Record, ttl time.Duration) (*session.Record, bool, error)
}

// IssuedToken is the flow-local token shape. ExpiresIn is whole seconds.
type IssuedToken struct {
	Value     string
	JTI       string
	ExpiresIn int64
	ExpiresAt time.Time
	Reused    bool
}

// TokenMetrics carries metric IDs needed by token flows.
type TokenMetrics struct {
	TokenReused   int
	TokenIssued   int
	ClaimRaceLost int
}

// TokenErrors carries host-level sentinel errors used by token flows.
type TokenErrors struct {
	EngineNotReady   error
	InvalidArgument  error
	SessionNotFound  error
	StoreUnavailable error
}

// TokenDeps captures token lookup and issuance dependencies.
type TokenDeps struct {
	TTL          time.Duration
	Now          func() time.Time
	NewJTI       func() (string, error)
	SignAccess   func(userID, username, jti string) (string, time.Time, error)
	SessionStore TokenSessionStore

	MetricInc func(int)

	Metrics TokenMetrics
	Errors  TokenErrors
}

func (d *TokenDeps) normalize() error {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.SessionStore == nil || d.NewJTI == nil || d.SignAccess == nil || d.TTL <= 0 {
		return d.Errors.EngineNotReady
	}
	return nil
}

// RunExistingToken returns the live token of userID, if any. It never writes.
func RunExistingToken(ctx context.Context, userID string, deps TokenDeps) (IssuedToken, bool, error) {
	if err := deps.normalize(); err != nil {
		return IssuedToken{}, false, err
	}
	if userID == "" {
		return IssuedToken{}, false, fmt.Errorf("%w: user id is required", deps.Errors.InvalidArgument)
	}

	rec, err := deps.SessionStore.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionNotFound) {
			return IssuedToken{}, false, nil
		}
		return IssuedToken{}, false, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}

	return tokenFromRecord(rec, deps.Now()), true, nil
}

// RunCreateAccessToken signs a new token and claims the session slot of userID.
// When another caller claimed the slot first, the winner's token is returned.
func RunCreateAccessToken(ctx context.Context, userID, username string, deps TokenDeps) (IssuedToken, error) {
	if err := deps.normalize(); err != nil {
		return IssuedToken{}, err
	}
	if userID == "" {
		return IssuedToken{}, fmt.Errorf("%w: user id is required", deps.Errors.InvalidArgument)
	}

	jti, err := deps.NewJTI()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate jti: %w", err)
	}

	now := deps.Now()
	signed, expiresAt, err := deps.SignAccess(userID, username, jti)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign access token: %w", err)
	}

	stored, created, err := deps.SessionStore.Claim(ctx, &session.Record{
		UserID:   userID,
		Token:    signed,
		JTI:      jti,
		IssuedAt: now.Unix(),
	}, deps.TTL)
	if err != nil {
		return IssuedToken{}, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}

	if !created {
		deps.MetricInc(deps.Metrics.ClaimRaceLost)
		return tokenFromRecord(stored, now), nil
	}

	deps.MetricInc(deps.Metrics.TokenIssued)
	return IssuedToken{
		Value:     signed,
		JTI:       jti,
		ExpiresIn: int64(deps.TTL / time.Second),
		ExpiresAt: expiresAt,
	}, nil
}

// RunIssueOrReuseToken returns the live token of userID or creates one.
func RunIssueOrReuseToken(ctx context.Context, userID, username string, deps TokenDeps) (IssuedToken, error) {
	existing, ok, err := RunExistingToken(ctx, userID, deps)
	if err != nil {
		return IssuedToken{}, err
	}
	if ok {
		if deps.MetricInc != nil {
			deps.MetricInc(deps.Metrics.TokenReused)
		}
		return existing, nil
	}

	return RunCreateAccessToken(ctx, userID, username, deps)
}

func tokenFromRecord(rec *session.Record, now time.Time) IssuedToken {
	return IssuedToken{
		Value:     rec.Token,
		JTI:       rec.JTI,
		ExpiresIn: int64(rec.TTL / time.Second),
		ExpiresAt: now.Add(rec.TTL),
		Reused:    true,
	}
}

func wrapStoreError(sentinel, err error) error {
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
