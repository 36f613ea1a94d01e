package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoginUser is a flow-local user model.
type LoginUser struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	UserID     string
	Username   string
	Registered bool
	Token      IssuedToken
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	Registered       int
	RegisterConflict int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
	UserRegistered   string
	PasswordUpgrade  string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidArgument    error
	InvalidCredentials error
	LoginRateLimited   error
	UserNotFound       error
	StoreConflict      error
	StoreUnavailable   error
}

// LoginDeps captures login-or-register dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	NewUserID           func() string

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string) error

	GetUserByUsername  func(context.Context, string) (LoginUser, error)
	CreateUser         func(context.Context, LoginUser) error
	UpdatePasswordHash func(context.Context, string, string) error

	HashPassword         func(string) (string, error)
	VerifyPassword       func(password, encodedHash string) bool
	PasswordNeedsUpgrade func(string) (bool, error)

	IssueOrReuseToken func(ctx context.Context, userID, username string) (IssuedToken, error)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, eventType string, success bool, userID, username, sessionID string, err error, metadata func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates username/password, registering the user on first
// sight, and returns the single live token of that user.
//
// Validate -> Lookup -> {Register | VerifyPassword} -> IssueOrReuseToken.
// A registration that loses the username race falls through to password
// verification against the winning record.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.GetUserByUsername == nil ||
		deps.CreateUser == nil ||
		deps.HashPassword == nil ||
		deps.VerifyPassword == nil ||
		deps.NewUserID == nil ||
		deps.IssueOrReuseToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if strings.TrimSpace(username) == "" {
		return nil, deps.failValidation(ctx, username, "username cannot be empty")
	}
	if strings.TrimSpace(password) == "" {
		return nil, deps.failValidation(ctx, username, "password cannot be empty")
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, username, ip); err != nil {
			if !errors.Is(err, deps.Errors.LoginRateLimited) {
				return nil, wrapStoreError(deps.Errors.StoreUnavailable, err)
			}
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", username, "", deps.Errors.LoginRateLimited, nil)
			return nil, deps.Errors.LoginRateLimited
		}
	}

	user, err := deps.GetUserByUsername(ctx, username)
	registered := false
	switch {
	case err == nil:
	case errors.Is(err, deps.Errors.UserNotFound):
		user, registered, err = deps.register(ctx, username, password)
		if err != nil {
			return nil, err
		}
	default:
		return nil, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}

	if !registered {
		if !deps.VerifyPassword(password, user.PasswordHash) {
			if deps.IncrementLoginRate != nil {
				// The next CheckLoginRate enforces the budget.
				_ = deps.IncrementLoginRate(ctx, username, ip)
			}
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, username, "", deps.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{
					"reason": "password_mismatch",
				}
			})
			return nil, deps.Errors.InvalidCredentials
		}
		deps.maybeUpgradeHash(ctx, user, password)
	}

	token, err := deps.IssueOrReuseToken(ctx, user.ID, user.Username)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.ID, username, "", err, func() map[string]string {
			return map[string]string{
				"reason": "token_issue_failed",
			}
		})
		return nil, err
	}

	if deps.ResetLoginRate != nil {
		_ = deps.ResetLoginRate(ctx, username)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, username, token.JTI, nil, func() map[string]string {
		source := "issued"
		if token.Reused {
			source = "reused"
		}
		return map[string]string{
			"token":      source,
			"registered": fmt.Sprintf("%t", registered),
		}
	})

	return &LoginResult{
		UserID:     user.ID,
		Username:   user.Username,
		Registered: registered,
		Token:      token,
	}, nil
}

func (deps *LoginDeps) failValidation(ctx context.Context, username, message string) error {
	err := fmt.Errorf("%w: %s", deps.Errors.InvalidArgument, message)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", username, "", deps.Errors.InvalidArgument, func() map[string]string {
		return map[string]string{
			"reason": message,
		}
	})
	return err
}

// register creates a user for username. The bool result is false when a
// concurrent registration won and the returned user is the winner's record,
// which still needs password verification.
func (deps *LoginDeps) register(ctx context.Context, username, password string) (LoginUser, bool, error) {
	hash, err := deps.HashPassword(password)
	if err != nil {
		return LoginUser{}, false, fmt.Errorf("hash password: %w", err)
	}

	user := LoginUser{
		ID:           deps.NewUserID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    deps.Now().UTC(),
	}

	err = deps.CreateUser(ctx, user)
	if err == nil {
		deps.MetricInc(deps.Metrics.Registered)
		deps.EmitAudit(ctx, deps.Events.UserRegistered, true, user.ID, username, "", nil, nil)
		return user, true, nil
	}
	if !errors.Is(err, deps.Errors.StoreConflict) {
		return LoginUser{}, false, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}

	deps.MetricInc(deps.Metrics.RegisterConflict)
	winner, err := deps.GetUserByUsername(ctx, username)
	if err != nil {
		// The conflicting record must exist; anything else is a store fault.
		return LoginUser{}, false, wrapStoreError(deps.Errors.StoreUnavailable, err)
	}
	return winner, false, nil
}

func (deps *LoginDeps) maybeUpgradeHash(ctx context.Context, user LoginUser, password string) {
	if !deps.PasswordUpgradeOnLogin || deps.PasswordNeedsUpgrade == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needsUpgrade, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}

	hash, err := deps.HashPassword(password)
	if err == nil {
		err = deps.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordUpgrade, false, user.ID, user.Username, "", err, nil)
		return
	}

	deps.MetricInc(deps.Metrics.PasswordUpgraded)
	deps.EmitAudit(ctx, deps.Events.PasswordUpgrade, true, user.ID, user.Username, "", nil, nil)
}
