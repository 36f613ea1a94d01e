package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// ActiveSession reports the live session of userID without its token.
// The bool result is false when no session exists.
func (e *Engine) ActiveSession(ctx context.Context, userID string) (SessionInfo, bool, error) {
	if e == nil || e.sessions == nil {
		return SessionInfo{}, false, ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return SessionInfo{}, false, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	rec, err := e.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return SessionInfo{}, false, nil
		}
		return SessionInfo{}, false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return SessionInfo{
		UserID:    userID,
		JTI:       rec.JTI,
		IssuedAt:  time.Unix(rec.IssuedAt, 0).UTC(),
		ExpiresIn: int64(rec.TTL / time.Second),
		ExpiresAt: e.now().Add(rec.TTL),
	}, true, nil
}

// Health pings the session cache when it supports it.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}
	p, ok := e.sessions.(pinger)
	if !ok {
		return HealthStatus{RedisAvailable: true}
	}

	latency, err := p.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

// GetLoginAttempts returns the failed-login counter of username.
// It is zero when throttling is disabled.
func (e *Engine) GetLoginAttempts(ctx context.Context, username string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if username == "" || !e.rateLimiter.Enabled() {
		return 0, nil
	}

	n, err := e.rateLimiter.GetLoginAttempts(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}
