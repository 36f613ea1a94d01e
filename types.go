package sessionauth

import (
	"context"
	"time"

	"github.com/MrEthical07/sessionauth/session"
)

// User is a stored credential record. Username is case-sensitive and never
// changes after creation.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CredentialStore persists users. Implementations must enforce username
// uniqueness and be safe for concurrent use.
//
//   - GetByUsername returns ErrUserNotFound for an unknown username.
//   - Create returns an error wrapping ErrStoreConflict when the username is taken.
//   - UpdatePasswordHash replaces the hash of an existing user.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, user User) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionCache holds at most one live token per user plus a revocation index
// keyed by jti. [session.Store] is the Redis implementation.
//
// Get returns ErrSessionNotFound when nothing live is stored. Claim and the
// Revoke methods must act on the user record and the jti index atomically.
type SessionCache interface {
	Get(ctx context.Context, userID string) (*session.Record, error)
	Claim(ctx context.Context, rec *session.Record, ttl time.Duration) (*session.Record, bool, error)
	Active(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, userID string) (bool, error)
	RevokeToken(ctx context.Context, jti string) (bool, error)
}

// LoginRequest is the input of [Engine.Login].
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// LoginResponse is returned by [Engine.Login]. ExpiresIn is whole seconds.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Token is an issued or reused access token.
type Token struct {
	Value     string
	ExpiresIn int64
	ExpiresAt time.Time
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID    string
	Username  string
	JTI       string
	ExpiresAt time.Time
}

// SessionInfo describes the live session of a user as reported by
// [Engine.ActiveSession]. The token itself is not included.
type SessionInfo struct {
	UserID    string
	JTI       string
	IssuedAt  time.Time
	ExpiresIn int64
	ExpiresAt time.Time
}
