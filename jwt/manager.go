package jwt

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the minimum accepted HS256 secret size in bytes.
const MinKeyLength = 32

// Config defines the token lifetime, signing secret and validation policy.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL    time.Duration
	SigningKey   []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	KeyID        string
	VerifyKeys   map[string][]byte

	// Now overrides the clock used for issuance and validation. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses access tokens.
//
// Manager instances are immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// AccessClaims is the claim set carried by every access token.
// Subject holds the user id and ID holds the jti.
type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager returns an error for a non-positive TTL, a secret shorter than
// MinKeyLength, leeway outside [0, 2m] or an inconsistent key set.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.SigningKey) < MinKeyLength {
		return nil, fmt.Errorf("hs256 signing key must be at least %d bytes", MinKeyLength)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinKeyLength {
			return nil, fmt.Errorf("verify key for kid %q is shorter than %d bytes", kid, MinKeyLength)
		}
	}
	if key, ok := cfg.VerifyKeys[cfg.KeyID]; ok && !hmac.Equal(key, cfg.SigningKey) {
		return nil, errors.New("verify key for the current KeyID differs from SigningKey")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured access-token lifetime.
func (j *Manager) TTL() time.Duration {
	return j.config.AccessTTL
}

// CreateAccess signs a token for userID/username bound to jti.
// It returns the compact token and its expiry instant.
func (j *Manager) CreateAccess(userID, username, jti string) (string, time.Time, error) {
	if userID == "" || jti == "" {
		return "", time.Time{}, errors.New("subject and jti are required")
	}

	now := j.config.Now()
	expiresAt := now.Add(j.config.AccessTTL)

	claims := AccessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			Issuer:    j.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	// NumericDate truncates to whole seconds.
	return signed, claims.ExpiresAt.Time, nil
}

// keyFor resolves the verification secret for t. The current KeyID (or a
// missing kid when no KeyID is set) always maps to SigningKey; VerifyKeys
// only serves retired kids.
func (j *Manager) keyFor(t *jwt.Token) ([]byte, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == j.config.KeyID {
		return j.config.SigningKey, nil
	}
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	key, ok := j.config.VerifyKeys[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	return key, nil
}

// ParseAccess verifies signature, algorithm, issuer, audience and expiry of tokenStr.
//
// ParseAccess does not consult session state; revocation is checked by the caller.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		return j.keyFor(t)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject missing")
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.config.Now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}
