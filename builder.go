package sessionauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/sessionauth/internal"
	internalaudit "github.com/MrEthical07/sessionauth/internal/audit"
	internalflows "github.com/MrEthical07/sessionauth/internal/flows"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/password"
	"github.com/MrEthical07/sessionauth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for a single Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions  SessionCache
	users     CredentialStore
	auditSink AuditSink
	clock     func() time.Time

	authenticateObserver func(time.Duration)

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from the default configuration without a signing key; callers
// must supply one through WithConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig stores a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// The client backs the session cache and the login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionCache replaces the Redis session cache. Login throttling still
// needs WithRedis.
func (b *Builder) WithSessionCache(cache SessionCache) *Builder {
	b.sessions = cache
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink only receives events when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the clock used for token issuance, validation and
// user timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithAuthenticateObserver registers fn to receive the duration of every
// Authenticate call, independent of the built-in latency histogram. fn runs
// on the request goroutine and must not block.
func (b *Builder) WithAuthenticateObserver(fn func(time.Duration)) *Builder {
	b.authenticateObserver = fn
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires the session cache, password hasher,
// JWT manager, throttle, audit dispatcher and metrics, and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		if b.sessions == nil {
			return nil, errors.New("redis client or session cache required")
		}
		if cfg.Security.MaxLoginAttempts > 0 {
			return nil, errors.New("login throttling requires redis client")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("credential store required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- SESSION CACHE --------
	sessions := b.sessions
	if sessions == nil {
		sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.MinReuseTTL)
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		sessions:    sessions,
		users:       b.users,
		clock:       clock,
		newUserID:   uuid.NewString,
		observeAuth: b.authenticateObserver,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Session.RedisPrefix,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		BestEffort: []string{AuditEventTokenRejected},
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- PASSWORD HASHER --------
	ph, err := password.NewHasher(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.passwordHash = ph

	// -------- JWT MANAGER --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		SigningKey: cloneBytes(cfg.JWT.SigningKey),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
		RequireIAT: cfg.JWT.RequireIAT,
		KeyID:      cfg.JWT.KeyID,
		VerifyKeys: cfg.JWT.VerifyKeys,
		Now:        clock,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.jwtManager = jm

	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps() internalflows.Deps {
	return internalflows.Deps{
		Token: internalflows.TokenDeps{
			TTL:          e.config.JWT.AccessTTL,
			Now:          e.now,
			NewJTI:       internal.NewJTI,
			SignAccess:   e.jwtManager.CreateAccess,
			SessionStore: e.sessions,
			MetricInc: func(id int) {
				e.metricInc(MetricID(id))
			},
			Metrics: internalflows.TokenMetrics{
				TokenReused:   int(MetricTokenReused),
				TokenIssued:   int(MetricTokenIssued),
				ClaimRaceLost: int(MetricClaimRaceLost),
			},
			Errors: internalflows.TokenErrors{
				EngineNotReady:   ErrEngineNotReady,
				InvalidArgument:  ErrInvalidArgument,
				SessionNotFound:  ErrSessionNotFound,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
		Gate: internalflows.GateDeps{
			ParseAccess: e.jwtManager.ParseAccess,
			IsActive:    e.sessions.Active,
			Errors: internalflows.GateErrors{
				EngineNotReady:   ErrEngineNotReady,
				TokenInvalid:     ErrTokenInvalid,
				TokenNotActive:   ErrTokenNotActive,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
		Logout: internalflows.LogoutDeps{
			ParseAccess:  e.jwtManager.ParseAccess,
			SessionStore: e.sessions,
			Errors: internalflows.LogoutErrors{
				EngineNotReady:   ErrEngineNotReady,
				InvalidArgument:  ErrInvalidArgument,
				TokenInvalid:     ErrTokenInvalid,
				StoreUnavailable: ErrStoreUnavailable,
			},
		},
	}
}
