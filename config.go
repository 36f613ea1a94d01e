package sessionauth

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/MrEthical07/sessionauth/session"
)

// Config is the full engine configuration. Build validates a private copy, so
// mutating a Config after Build has no effect on the engine.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token issuance and verification. Tokens are
// always HS256.
type JWTConfig struct {
	AccessTTL  time.Duration
	SigningKey []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	RequireIAT bool
	KeyID      string
	// VerifyKeys holds retired secrets by kid so tokens signed before a key
	// rotation keep verifying until they expire. Tokens carrying KeyID are
	// always checked against SigningKey.
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis key layout of the session cache.
type SessionConfig struct {
	RedisPrefix string
	// MinReuseTTL is the remaining lifetime at or below which a stored token
	// is treated as expired and replaced instead of reused.
	MinReuseTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds PBKDF2 parameters for newly produced hashes.
type PasswordConfig struct {
	Iterations     int
	SaltLength     int
	KeyLength      int
	UpgradeOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling. MaxLoginAttempts of zero disables
// throttling entirely.
type SecurityConfig struct {
	ProductionMode        bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	EnableIPThrottle      bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 30 * time.Minute,
			Issuer:    "sessionauth",
			Audience:  "sessionauth-api",
			Leeway:    10 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "sa",
			MinReuseTTL: session.DefaultMinReuseTTL,
		},
		Password: PasswordConfig{
			Iterations:     password.DefaultIterations,
			SaltLength:     password.DefaultSaltLength,
			KeyLength:      password.DefaultKeyLength,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			MaxLoginAttempts:      0,
			LoginCooldownDuration: 15 * time.Minute,
			EnableIPThrottle:      false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the baseline configuration with a freshly generated
// random signing key. Tokens signed with a generated key do not survive a
// process restart; set JWT.SigningKey for anything beyond local use.
func DefaultConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.SigningKey = generateSigningKey()
	return cfg
}

// HighSecurityConfig returns a production preset: short tokens, tight
// leeway, mandatory iat, login throttling per user and IP, and auditing on.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.Leeway = 5 * time.Second
	cfg.JWT.RequireIAT = true
	cfg.Password.Iterations = 210_000
	cfg.Security.ProductionMode = true
	cfg.Security.MaxLoginAttempts = 5
	cfg.Security.LoginCooldownDuration = 15 * time.Minute
	cfg.Security.EnableIPThrottle = true
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func generateSigningKey() []byte {
	key := make([]byte, jwt.MinKeyLength)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("sessionauth: generate signing key: %v", err))
	}
	return key
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error. It is called by Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < time.Minute || c.JWT.AccessTTL > 24*time.Hour {
		return errors.New("JWT AccessTTL must be between 1m and 24h")
	}
	if len(c.JWT.SigningKey) < jwt.MinKeyLength {
		return fmt.Errorf("JWT SigningKey must be at least %d bytes", jwt.MinKeyLength)
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer is required")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	for kid := range c.JWT.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("JWT VerifyKeys must not contain an empty kid")
		}
	}
	if key, ok := c.JWT.VerifyKeys[c.JWT.KeyID]; ok && !hmac.Equal(key, c.JWT.SigningKey) {
		return errors.New("JWT VerifyKeys entry for KeyID must match SigningKey")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix is required")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}
	if c.Session.MinReuseTTL < 0 {
		return errors.New("Session MinReuseTTL must be >= 0")
	}
	if c.Session.MinReuseTTL >= c.JWT.AccessTTL {
		return errors.New("Session MinReuseTTL must be shorter than JWT AccessTTL")
	}

	// Password
	if c.Password.Iterations < password.DefaultIterations {
		return fmt.Errorf("Password Iterations must be >= %d", password.DefaultIterations)
	}
	if c.Password.Iterations > password.MaxIterations {
		return fmt.Errorf("Password Iterations must be <= %d", password.MaxIterations)
	}
	if c.Password.SaltLength < password.DefaultSaltLength {
		return fmt.Errorf("Password SaltLength must be >= %d", password.DefaultSaltLength)
	}
	if c.Password.KeyLength < password.DefaultKeyLength {
		return fmt.Errorf("Password KeyLength must be >= %d", password.DefaultKeyLength)
	}

	// Security
	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0 when login throttling is enabled")
	}
	if c.Security.EnableIPThrottle && c.Security.MaxLoginAttempts == 0 {
		return errors.New("EnableIPThrottle requires MaxLoginAttempts > 0")
	}
	if c.Security.ProductionMode {
		if c.Security.MaxLoginAttempts == 0 {
			return errors.New("ProductionMode requires login throttling")
		}
		if !c.JWT.RequireIAT {
			return errors.New("ProductionMode requires JWT RequireIAT")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
