package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	internalflows "github.com/MrEthical07/sessionauth/internal/flows"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
)

// Engine is the login-or-register and token lifecycle core.
//
// Engine instances are created by [Builder.Build], immutable afterwards and
// safe for concurrent use.
type Engine struct {
	config       Config
	sessions     SessionCache
	users        CredentialStore
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	jwtManager   *jwt.Manager
	clock        func() time.Time
	newUserID    func() string
	observeAuth  func(time.Duration)
	flows        internalflows.Deps
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped due to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// Login authenticates req, registering the username on first sight, and
// returns the caller's single live bearer token.
//
// Every credential failure returns [ErrInvalidCredentials]. Empty fields
// return an error wrapping [ErrInvalidArgument]. A repeated login while the
// token is live returns the same token with its remaining lifetime.
func (e *Engine) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if e == nil || e.users == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be empty", ErrInvalidArgument)
	}

	result, err := internalflows.RunLogin(ctx, req.Username, req.Password, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Token:     result.Token.Value,
		TokenType: TokenTypeBearer,
		ExpiresIn: result.Token.ExpiresIn,
	}, nil
}

// Authenticate verifies tokenStr and admits it only while its jti is present
// in the revocation index.
//
// Signature, issuer, audience and expiry failures return [ErrTokenInvalid].
// A verified but revoked or superseded token returns [ErrTokenNotActive].
// Session cache failures return an error wrapping [ErrStoreUnavailable];
// the request is never admitted in that case.
func (e *Engine) Authenticate(ctx context.Context, tokenStr string) (Principal, error) {
	if e == nil || e.jwtManager == nil || e.sessions == nil {
		return Principal{}, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() || e.observeAuth != nil {
		start := time.Now()
		defer func() {
			elapsed := time.Since(start)
			e.metrics.Observe(MetricAuthenticateLatency, elapsed)
			if e.observeAuth != nil {
				e.observeAuth(elapsed)
			}
		}()
	}

	res := internalflows.RunAuthenticate(ctx, tokenStr, e.flows.Gate)
	if res.Failure == internalflows.GateFailureNone {
		e.metricInc(MetricAuthenticateSuccess)
		return principalFromClaims(res.Claims), nil
	}

	reason := "store_unavailable"
	switch res.Failure {
	case internalflows.GateFailureTokenInvalid:
		reason = "invalid_token"
		e.metricInc(MetricTokenInvalid)
	case internalflows.GateFailureTokenNotActive:
		reason = "not_active"
		e.metricInc(MetricTokenNotActive)
	}
	e.emitAudit(ctx, AuditEventTokenRejected, false, "", "", "", res.Err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return Principal{}, res.Err
}

// Logout expires the session tokenStr belongs to. The token must still pass
// cryptographic validation. Logging out an already revoked token succeeds.
func (e *Engine) Logout(ctx context.Context, tokenStr string) error {
	if e == nil || e.jwtManager == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	res := internalflows.RunLogoutByAccessToken(ctx, tokenStr, e.flows.Logout)
	if res.Err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, AuditEventLogout, res.Err == nil, res.UserID, "", res.JTI, res.Err, func() map[string]string {
		return map[string]string{
			"revoked": strconv.FormatBool(res.Revoked),
		}
	})
	return res.Err
}

// RevokeUser removes the live session of userID, if any.
func (e *Engine) RevokeUser(ctx context.Context, userID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	revoked, err := internalflows.RunRevokeUser(ctx, userID, e.flows.Logout)
	if err == nil {
		e.metricInc(MetricRevokeUser)
	}
	e.emitAudit(ctx, AuditEventRevokeUser, err == nil, userID, "", "", err, func() map[string]string {
		return map[string]string{
			"revoked": strconv.FormatBool(revoked),
		}
	})
	return err
}

func principalFromClaims(claims *jwt.AccessClaims) Principal {
	p := Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		ClientIPFromContext:    ClientIPFromContext,
		Now:                    e.now,
		NewUserID:              e.newUserID,
		GetUserByUsername: func(ctx context.Context, username string) (internalflows.LoginUser, error) {
			user, err := e.users.GetByUsername(ctx, username)
			if err != nil {
				return internalflows.LoginUser{}, err
			}
			return toFlowUser(user), nil
		},
		CreateUser: func(ctx context.Context, user internalflows.LoginUser) error {
			return e.users.Create(ctx, fromFlowUser(user))
		},
		UpdatePasswordHash: e.users.UpdatePasswordHash,
		IssueOrReuseToken: func(ctx context.Context, userID, username string) (internalflows.IssuedToken, error) {
			return internalflows.RunIssueOrReuseToken(ctx, userID, username, e.flows.Token)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			Registered:       int(MetricUserRegistered),
			RegisterConflict: int(MetricRegisterConflict),
			PasswordUpgraded: int(MetricPasswordUpgraded),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess:     AuditEventLoginSuccess,
			LoginFailure:     AuditEventLoginFailure,
			LoginRateLimited: AuditEventLoginRateLimited,
			UserRegistered:   AuditEventUserRegistered,
			PasswordUpgrade:  AuditEventPasswordUpgrade,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidArgument:    ErrInvalidArgument,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
			UserNotFound:       ErrUserNotFound,
			StoreConflict:      ErrStoreConflict,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}

	if e.passwordHash != nil {
		deps.HashPassword = e.hashPassword
		deps.VerifyPassword = e.passwordHash.Verify
		deps.PasswordNeedsUpgrade = e.passwordHash.NeedsUpgrade
	}

	if e.rateLimiter.Enabled() {
		deps.CheckLoginRate = func(ctx context.Context, username, ip string) error {
			return mapLimiterError(e.rateLimiter.CheckLogin(ctx, username, ip))
		}
		deps.IncrementLoginRate = func(ctx context.Context, username, ip string) error {
			return mapLimiterError(e.rateLimiter.IncrementLogin(ctx, username, ip))
		}
		deps.ResetLoginRate = func(ctx context.Context, username string) error {
			return mapLimiterError(e.rateLimiter.ResetLogin(ctx, username))
		}
	}

	return deps
}

// hashPassword reports an unusable password as ErrInvalidArgument so the
// register branch classifies it like request validation.
func (e *Engine) hashPassword(pwd string) (string, error) {
	hash, err := e.passwordHash.Hash(pwd)
	if errors.Is(err, password.ErrEmptyPassword) {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return hash, err
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

func toFlowUser(u User) internalflows.LoginUser {
	return internalflows.LoginUser{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func fromFlowUser(u internalflows.LoginUser) User {
	return User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}
