package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML layout. Every field can be overridden by an
// AUTHD_* environment variable.
type fileConfig struct {
	HTTP struct {
		Addr            string        `yaml:"addr"`
		TrustProxy      bool          `yaml:"trust_proxy"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	Database struct {
		URL    string `yaml:"url"`
		Schema string `yaml:"schema"`
		Table  string `yaml:"table"`
	} `yaml:"database"`

	Auth struct {
		JWTKeyHex        string        `yaml:"jwt_key_hex"`
		Issuer           string        `yaml:"issuer"`
		Audience         string        `yaml:"audience"`
		AccessTTL        time.Duration `yaml:"access_ttl"`
		Leeway           time.Duration `yaml:"leeway"`
		RedisPrefix      string        `yaml:"redis_prefix"`
		Iterations       int           `yaml:"pbkdf2_iterations"`
		MaxLoginAttempts int           `yaml:"max_login_attempts"`
		LoginCooldown    time.Duration `yaml:"login_cooldown"`
		IPThrottle       bool          `yaml:"ip_throttle"`
		Audit            bool          `yaml:"audit"`
		Metrics          bool          `yaml:"metrics"`
	} `yaml:"auth"`
}

func defaultFileConfig() fileConfig {
	var fc fileConfig
	fc.HTTP.Addr = ":8080"
	fc.HTTP.ShutdownTimeout = 10 * time.Second
	fc.Log.Level = "info"
	fc.Redis.URL = "redis://localhost:6379/0"
	fc.Database.Schema = "public"
	fc.Database.Table = "users"
	fc.Auth.Metrics = true
	return fc
}

// loadConfig reads path (when non-empty) over the defaults and then applies
// environment overrides.
func loadConfig(path string) (fileConfig, error) {
	fc := defaultFileConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fileConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return fileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	fc.HTTP.Addr = firstNonEmpty(os.Getenv("AUTHD_HTTP_ADDR"), fc.HTTP.Addr)
	fc.HTTP.TrustProxy = boolFromEnv("AUTHD_TRUST_PROXY", fc.HTTP.TrustProxy)
	fc.HTTP.ShutdownTimeout = durationFromEnv("AUTHD_SHUTDOWN_TIMEOUT", fc.HTTP.ShutdownTimeout)
	fc.Log.Level = firstNonEmpty(os.Getenv("AUTHD_LOG_LEVEL"), fc.Log.Level)
	fc.Redis.URL = firstNonEmpty(os.Getenv("AUTHD_REDIS_URL"), fc.Redis.URL)
	fc.Database.URL = firstNonEmpty(os.Getenv("AUTHD_DATABASE_URL"), fc.Database.URL)
	fc.Database.Schema = firstNonEmpty(os.Getenv("AUTHD_DATABASE_SCHEMA"), fc.Database.Schema)
	fc.Database.Table = firstNonEmpty(os.Getenv("AUTHD_DATABASE_TABLE"), fc.Database.Table)
	fc.Auth.JWTKeyHex = firstNonEmpty(os.Getenv("AUTHD_JWT_KEY"), fc.Auth.JWTKeyHex)
	fc.Auth.Issuer = firstNonEmpty(os.Getenv("AUTHD_JWT_ISSUER"), fc.Auth.Issuer)
	fc.Auth.Audience = firstNonEmpty(os.Getenv("AUTHD_JWT_AUDIENCE"), fc.Auth.Audience)
	fc.Auth.AccessTTL = durationFromEnv("AUTHD_ACCESS_TTL", fc.Auth.AccessTTL)
	fc.Auth.MaxLoginAttempts = intFromEnv("AUTHD_MAX_LOGIN_ATTEMPTS", fc.Auth.MaxLoginAttempts)
	fc.Auth.LoginCooldown = durationFromEnv("AUTHD_LOGIN_COOLDOWN", fc.Auth.LoginCooldown)
	fc.Auth.IPThrottle = boolFromEnv("AUTHD_IP_THROTTLE", fc.Auth.IPThrottle)
	fc.Auth.Audit = boolFromEnv("AUTHD_AUDIT", fc.Auth.Audit)
	fc.Auth.Metrics = boolFromEnv("AUTHD_METRICS", fc.Auth.Metrics)

	return fc, nil
}

// engineConfig maps fc onto the library configuration. Zero values keep the
// library defaults.
func (fc fileConfig) engineConfig() (sessionauth.Config, error) {
	cfg := sessionauth.DefaultConfig()

	key := strings.TrimSpace(fc.Auth.JWTKeyHex)
	if key == "" {
		return sessionauth.Config{}, errors.New("auth.jwt_key_hex (AUTHD_JWT_KEY) is required")
	}
	decoded, err := hex.DecodeString(key)
	if err != nil {
		return sessionauth.Config{}, fmt.Errorf("decode jwt key: %w", err)
	}
	cfg.JWT.SigningKey = decoded

	if fc.Auth.Issuer != "" {
		cfg.JWT.Issuer = fc.Auth.Issuer
	}
	if fc.Auth.Audience != "" {
		cfg.JWT.Audience = fc.Auth.Audience
	}
	if fc.Auth.AccessTTL > 0 {
		cfg.JWT.AccessTTL = fc.Auth.AccessTTL
	}
	if fc.Auth.Leeway > 0 {
		cfg.JWT.Leeway = fc.Auth.Leeway
	}
	if fc.Auth.RedisPrefix != "" {
		cfg.Session.RedisPrefix = fc.Auth.RedisPrefix
	}
	if fc.Auth.Iterations > 0 {
		cfg.Password.Iterations = fc.Auth.Iterations
	}
	cfg.Security.MaxLoginAttempts = fc.Auth.MaxLoginAttempts
	if fc.Auth.LoginCooldown > 0 {
		cfg.Security.LoginCooldownDuration = fc.Auth.LoginCooldown
	}
	cfg.Security.EnableIPThrottle = fc.Auth.IPThrottle
	cfg.Audit.Enabled = fc.Auth.Audit
	cfg.Metrics.Enabled = fc.Auth.Metrics
	cfg.Metrics.EnableLatencyHistograms = fc.Auth.Metrics

	if err := cfg.Validate(); err != nil {
		return sessionauth.Config{}, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// boolFromEnv reads a boolean from env var name, falling back to defaultVal when empty or invalid.
func boolFromEnv(name string, defaultVal bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// intFromEnv reads an int from env var name, falling back to defaultVal when empty or invalid.
func intFromEnv(name string, defaultVal int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func durationFromEnv(name string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
