package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
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
	return NewStore(rdb, "sa", time.Second), mr, rdb
}

func testRecord(jti string) *Record {
	return &Record{
		UserID:   "u-1",
		Token:    "token-" + jti,
		JTI:      jti,
		IssuedAt: time.Now().Unix(),
	}
}

func TestClaimWritesBothKeysWithSameTTL(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	stored, created, err := store.Claim(ctx, testRecord("j1"), 30*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !created {
		t.Fatal("expected first claim to create the session")
	}
	if stored.Token != "token-j1" || stored.JTI != "j1" || stored.TTL != 30*time.Minute {
		t.Fatalf("unexpected stored record: %+v", stored)
	}

	if got := mr.HGet("sa:user:u-1", "jti"); got != "j1" {
		t.Fatalf("expected user hash jti j1, got %q", got)
	}
	if got, _ := mr.Get("sa:token:j1"); got != "u-1" {
		t.Fatalf("expected token key to hold user id, got %q", got)
	}
	if mr.TTL("sa:user:u-1") != mr.TTL("sa:token:j1") {
		t.Fatalf("expected identical TTLs, got %v and %v", mr.TTL("sa:user:u-1"), mr.TTL("sa:token:j1"))
	}
}

func TestClaimReturnsExistingLiveSession(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, testRecord("j1"), 30*time.Minute); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	mr.FastForward(10 * time.Minute)

	stored, created, err := store.Claim(ctx, testRecord("j2"), 30*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if created {
		t.Fatal("expected second claim to reuse the live session")
	}
	if stored.JTI != "j1" || stored.Token != "token-j1" {
		t.Fatalf("expected original session, got %+v", stored)
	}
	if stored.TTL != 20*time.Minute {
		t.Fatalf("expected remaining TTL 20m, got %v", stored.TTL)
	}
	if mr.Exists("sa:token:j2") {
		t.Fatal("losing claim must not write its jti key")
	}
}

func TestClaimReplacesSessionNearExpiry(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, testRecord("j1"), 2*time.Second); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	mr.FastForward(1500 * time.Millisecond)

	stored, created, err := store.Claim(ctx, testRecord("j2"), time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !created || stored.JTI != "j2" {
		t.Fatalf("expected replacement session, created=%v rec=%+v", created, stored)
	}
	if mr.Exists("sa:token:j1") {
		t.Fatal("expected previous jti key to be removed")
	}
}

func TestClaimRepairsDivergedPair(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, testRecord("j1"), time.Hour); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	mr.Del("sa:token:j1")

	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected user hash without jti key to be ignored, got %v", err)
	}

	stored, created, err := store.Claim(ctx, testRecord("j2"), time.Hour)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !created || stored.JTI != "j2" {
		t.Fatalf("expected fresh session, created=%v rec=%+v", created, stored)
	}
}

func TestClaimValidatesInput(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, nil, time.Hour); err == nil {
		t.Fatal("expected nil record to fail")
	}
	if _, _, err := store.Claim(ctx, &Record{UserID: "u"}, time.Hour); err == nil {
		t.Fatal("expected record without jti to fail")
	}
	if _, _, err := store.Claim(ctx, testRecord("j1"), 500*time.Millisecond); err == nil {
		t.Fatal("expected ttl below reuse floor to fail")
	}
}

func TestGetReportsRemainingTTL(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for missing session, got %v", err)
	}

	rec := testRecord("j1")
	if _, _, err := store.Claim(ctx, rec, time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	mr.FastForward(15 * time.Minute)

	got, err := store.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-1" || got.JTI != "j1" || got.IssuedAt != rec.IssuedAt {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.TTL != 45*time.Minute {
		t.Fatalf("expected 45m remaining, got %v", got.TTL)
	}
	if mr.TTL("sa:user:u-1") != 45*time.Minute {
		t.Fatal("get must not extend the session TTL")
	}

	mr.FastForward(45 * time.Minute)
	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestActiveTracksJTI(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	active, err := store.Active(ctx, "j1")
	if err != nil || active {
		t.Fatalf("expected unknown jti inactive, active=%v err=%v", active, err)
	}

	if _, _, err := store.Claim(ctx, testRecord("j1"), time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	active, err = store.Active(ctx, "j1")
	if err != nil || !active {
		t.Fatalf("expected claimed jti active, active=%v err=%v", active, err)
	}

	mr.FastForward(time.Minute)
	active, err = store.Active(ctx, "j1")
	if err != nil || active {
		t.Fatalf("expected expired jti inactive, active=%v err=%v", active, err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, testRecord("j1"), time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}

	removed, err := store.Revoke(ctx, "u-1")
	if err != nil || !removed {
		t.Fatalf("first revoke: removed=%v err=%v", removed, err)
	}
	removed, err = store.Revoke(ctx, "u-1")
	if err != nil || removed {
		t.Fatalf("second revoke: removed=%v err=%v", removed, err)
	}

	if mr.Exists("sa:user:u-1") || mr.Exists("sa:token:j1") {
		t.Fatal("expected both keys removed")
	}
}

func TestRevokeTokenLeavesNewerSession(t *testing.T) {
	store, mr, rdb := newSessionStoreTest(t)
	ctx := context.Background()

	if _, _, err := store.Claim(ctx, testRecord("j1"), time.Hour); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// A stray jti key pointing at the same user, as left by an older session.
	if err := rdb.Set(ctx, "sa:token:j0", "u-1", time.Hour).Err(); err != nil {
		t.Fatalf("seed stray key: %v", err)
	}

	removed, err := store.RevokeToken(ctx, "j0")
	if err != nil || !removed {
		t.Fatalf("revoke stray: removed=%v err=%v", removed, err)
	}
	if !mr.Exists("sa:user:u-1") || !mr.Exists("sa:token:j1") {
		t.Fatal("expected current session to survive revoking an older jti")
	}

	removed, err = store.RevokeToken(ctx, "j1")
	if err != nil || !removed {
		t.Fatalf("revoke current: removed=%v err=%v", removed, err)
	}
	if mr.Exists("sa:user:u-1") || mr.Exists("sa:token:j1") {
		t.Fatal("expected current session removed")
	}

	removed, err = store.RevokeToken(ctx, "j1")
	if err != nil || removed {
		t.Fatalf("repeat revoke: removed=%v err=%v", removed, err)
	}
}

func TestConcurrentClaimsConvergeOnOneSession(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		tokens  = map[string]struct{}{}
		errs    []error
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			stored, ok, err := store.Claim(ctx, testRecord(fmt.Sprintf("j%d", i)), time.Hour)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if ok {
				created++
			}
			tokens[stored.Token] = struct{}{}
		}(i)
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected claim errors: %v", errs)
	}
	if created != 1 {
		t.Fatalf("expected exactly one created session, got %d", created)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected all callers to observe one token, got %d", len(tokens))
	}

	tokenKeys := 0
	for _, key := range mr.Keys() {
		if len(key) > len("sa:token:") && key[:len("sa:token:")] == "sa:token:" {
			tokenKeys++
		}
	}
	if tokenKeys != 1 {
		t.Fatalf("expected one jti key, got %d", tokenKeys)
	}
}

func TestStoreErrorsWrapRedisUnavailable(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	mr.Close()

	if _, err := store.Active(ctx, "j1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Active, got %v", err)
	}
	if _, err := store.Get(ctx, "u-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Get, got %v", err)
	}
	if _, _, err := store.Claim(ctx, testRecord("j1"), time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Claim, got %v", err)
	}
	if _, err := store.Revoke(ctx, "u-1"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Revoke, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Ping, got %v", err)
	}
}
