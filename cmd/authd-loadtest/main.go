// Command authd-loadtest drives concurrent logins and token checks through a
// sessionauth engine and verifies that every user converges on one token.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "load-test-password"

func main() {
	var (
		users       = flag.Int("users", 100, "number of distinct usernames")
		burst       = flag.Int("burst", 4, "concurrent first logins per user")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations in the authenticate phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "salt", "session key prefix")
	)
	flag.Parse()

	if *users <= 0 || *burst <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, burst, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := sessionauth.DefaultConfig()
	cfg.Session.RedisPrefix = *prefix
	cfg.Metrics.Enabled = true
	engine, err := sessionauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(userstore.NewMemory()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	tokens, loginStats, violations := runFirstLoginPhase(ctx, engine, *users, *burst, *concurrency)
	authStats := runAuthenticatePhase(ctx, engine, tokens, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("first-login", loginStats)
	printStats("authenticate", authStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("issued=%d reused=%d claim_race_lost=%d register_conflict=%d\n",
		snap.Counters[sessionauth.MetricTokenIssued],
		snap.Counters[sessionauth.MetricTokenReused],
		snap.Counters[sessionauth.MetricClaimRaceLost],
		snap.Counters[sessionauth.MetricRegisterConflict],
	)

	if violations > 0 {
		fmt.Fprintf(os.Stderr, "single-token violations: %d\n", violations)
		os.Exit(1)
	}
	fmt.Println("single-token invariant held")
}

// runFirstLoginPhase fires burst concurrent first logins for each user and
// counts users that observed more than one token.
func runFirstLoginPhase(ctx context.Context, engine *sessionauth.Engine, users, burst, concurrency int) ([]string, phaseStats, int) {
	type job struct{ user int }

	var (
		wg       sync.WaitGroup
		failures int64
		mu       sync.Mutex
		seen     = make([]map[string]struct{}, users)
		rec      = newRecorder(users * burst)
		jobs     = make(chan job)
	)
	for i := range seen {
		seen[i] = map[string]struct{}{}
	}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				req := &sessionauth.LoginRequest{Username: fmt.Sprintf("user-%d", j.user), Password: loadPassword}
				t0 := time.Now()
				resp, err := engine.Login(ctx, req)
				rec.add(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				mu.Lock()
				seen[j.user][resp.Token] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	for u := 0; u < users; u++ {
		for b := 0; b < burst; b++ {
			jobs <- job{user: u}
		}
	}
	close(jobs)
	wg.Wait()
	total := time.Since(start)

	tokens := make([]string, 0, users)
	violations := 0
	for _, set := range seen {
		if len(set) > 1 {
			violations++
		}
		for tok := range set {
			tokens = append(tokens, tok)
		}
	}
	return tokens, computeStats(total, rec.samples, failures), violations
}

func runAuthenticatePhase(ctx context.Context, engine *sessionauth.Engine, tokens []string, ops, concurrency int) phaseStats {
	if len(tokens) == 0 {
		return phaseStats{}
	}

	var (
		wg       sync.WaitGroup
		cursor   int64
		failures int64
		rec      = newRecorder(ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				tok := tokens[r.Intn(len(tokens))]
				t0 := time.Now()
				_, err := engine.Authenticate(ctx, tok)
				rec.add(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), rec.samples, failures)
}
