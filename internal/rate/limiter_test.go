package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLimiterDisabledIsNoOp(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Prefix: "sa"})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.IncrementLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("expected disabled limiter to allow, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys written, got %v", mr.Keys())
	}
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		Prefix:                "sa",
		MaxLoginAttempts:      3,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "alice", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	if err := l.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", ""); err != nil {
		t.Fatalf("expected other user unaffected, got %v", err)
	}

	attempts, err := l.GetLoginAttempts(ctx, "alice")
	if err != nil || attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d err=%v", attempts, err)
	}

	mr.FastForward(time.Minute)
	if err := l.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestLimiterResetClearsUserCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		Prefix:                "sa",
		EnableIPThrottle:      true,
		MaxLoginAttempts:      2,
		LoginCooldownDuration: time.Minute,
	})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "alice", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "alice", "10.0.0.1")
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limited before reset, got %v", err)
	}

	if err := l.ResetLogin(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected user counter cleared, got %v", err)
	}
	if err := l.CheckLogin(ctx, "carol", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ip counter to survive reset, got %v", err)
	}
}

func TestLimiterRedisFailure(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Prefix: "sa", MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	mr.Close()

	if err := l.CheckLogin(context.Background(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
