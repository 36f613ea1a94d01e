package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

var (
	errNotReady     = errors.New("not ready")
	errInvalidArg   = errors.New("invalid argument")
	errInvalidCreds = errors.New("password incorrect")
	errLimited      = errors.New("rate limited")
	errNotFound     = errors.New("user not found")
	errConflict     = errors.New("conflict")
	errUnavailable  = errors.New("unavailable")
)

type stubUsers struct {
	mu      sync.Mutex
	byName  map[string]LoginUser
	creates int
	updates map[string]string

	getErr    error
	createErr error
	// beforeCreate runs inside Create to simulate a concurrent winner.
	beforeCreate func(LoginUser)
}

func newStubUsers() *stubUsers {
	return &stubUsers{byName: map[string]LoginUser{}, updates: map[string]string{}}
}

func (s *stubUsers) get(_ context.Context, username string) (LoginUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return LoginUser{}, s.getErr
	}
	u, ok := s.byName[username]
	if !ok {
		return LoginUser{}, errNotFound
	}
	return u, nil
}

func (s *stubUsers) create(_ context.Context, u LoginUser) error {
	if s.beforeCreate != nil {
		s.beforeCreate(u)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byName[u.Username]; ok {
		return errConflict
	}
	s.byName[u.Username] = u
	s.creates++
	return nil
}

func (s *stubUsers) update(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[userID] = hash
	return nil
}

type loginHarness struct {
	users   *stubUsers
	issued  []string
	events  []string
	metrics map[int]int
	nextID  int
	deps    LoginDeps
}

func newLoginHarness() *loginHarness {
	h := &loginHarness{users: newStubUsers(), metrics: map[int]int{}}
	h.deps = LoginDeps{
		NewUserID: func() string {
			h.nextID++
			return "user-" + string(rune('0'+h.nextID))
		},
		GetUserByUsername:  h.users.get,
		CreateUser:         h.users.create,
		UpdatePasswordHash: h.users.update,
		HashPassword: func(p string) (string, error) {
			return "hash:" + p, nil
		},
		VerifyPassword: func(p, encoded string) bool {
			return encoded == "hash:"+p || encoded == "legacy:"+p
		},
		PasswordNeedsUpgrade: func(encoded string) (bool, error) {
			return strings.HasPrefix(encoded, "legacy:"), nil
		},
		IssueOrReuseToken: func(_ context.Context, userID, _ string) (IssuedToken, error) {
			h.issued = append(h.issued, userID)
			return IssuedToken{Value: "token-" + userID, JTI: "jti-" + userID, ExpiresIn: 1800}, nil
		},
		MetricInc: func(id int) { h.metrics[id]++ },
		EmitAudit: func(_ context.Context, eventType string, _ bool, _, _, _ string, _ error, metadata func() map[string]string) {
			if metadata != nil {
				_ = metadata()
			}
			h.events = append(h.events, eventType)
		},
		Metrics: LoginMetrics{
			LoginSuccess:     1,
			LoginFailure:     2,
			LoginRateLimited: 3,
			Registered:       4,
			RegisterConflict: 5,
			PasswordUpgraded: 6,
		},
		Events: LoginEvents{
			LoginSuccess:     "login_success",
			LoginFailure:     "login_failure",
			LoginRateLimited: "login_rate_limited",
			UserRegistered:   "user_registered",
			PasswordUpgrade:  "password_upgrade",
		},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidArgument:    errInvalidArg,
			InvalidCredentials: errInvalidCreds,
			LoginRateLimited:   errLimited,
			UserNotFound:       errNotFound,
			StoreConflict:      errConflict,
			StoreUnavailable:   errUnavailable,
		},
	}
	return h
}

func TestRunLoginRegistersUnknownUser(t *testing.T) {
	h := newLoginHarness()

	res, err := RunLogin(context.Background(), "alice", "pw", h.deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Registered || res.UserID != "user-1" || res.Token.Value != "token-user-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if h.users.byName["alice"].PasswordHash != "hash:pw" {
		t.Fatalf("expected stored hash, got %+v", h.users.byName["alice"])
	}
	if h.users.byName["alice"].CreatedAt.IsZero() || h.users.byName["alice"].CreatedAt.Location().String() != "UTC" {
		t.Fatal("expected UTC creation time")
	}
	if h.metrics[h.deps.Metrics.Registered] != 1 || h.metrics[h.deps.Metrics.LoginSuccess] != 1 {
		t.Fatalf("unexpected metrics: %v", h.metrics)
	}
}

func TestRunLoginVerifiesExistingUser(t *testing.T) {
	h := newLoginHarness()
	if _, err := RunLogin(context.Background(), "alice", "pw", h.deps); err != nil {
		t.Fatalf("first login: %v", err)
	}

	res, err := RunLogin(context.Background(), "alice", "pw", h.deps)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if res.Registered {
		t.Fatal("expected second login to take the verify branch")
	}
	if h.users.creates != 1 {
		t.Fatalf("expected one user record, got %d", h.users.creates)
	}

	_, err = RunLogin(context.Background(), "alice", "wrong", h.deps)
	if !errors.Is(err, errInvalidCreds) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.metrics[h.deps.Metrics.LoginFailure] != 1 {
		t.Fatalf("expected one failure metric, got %v", h.metrics)
	}
	if len(h.issued) != 2 {
		t.Fatalf("expected no token for failed login, issued=%v", h.issued)
	}
}

func TestRunLoginValidation(t *testing.T) {
	h := newLoginHarness()

	cases := []struct{ username, password string }{
		{"", "pw"},
		{"   ", "pw"},
		{"alice", ""},
		{"alice", "\t "},
	}
	for _, tc := range cases {
		_, err := RunLogin(context.Background(), tc.username, tc.password, h.deps)
		if !errors.Is(err, errInvalidArg) {
			t.Fatalf("RunLogin(%q, %q): expected invalid argument, got %v", tc.username, tc.password, err)
		}
	}
	if h.users.creates != 0 || len(h.issued) != 0 {
		t.Fatal("validation failures must not touch stores")
	}
}

func TestRunLoginRegisterConflictFallsBackToVerify(t *testing.T) {
	h := newLoginHarness()
	h.users.beforeCreate = func(u LoginUser) {
		h.users.mu.Lock()
		defer h.users.mu.Unlock()
		if _, ok := h.users.byName[u.Username]; !ok {
			h.users.byName[u.Username] = LoginUser{ID: "winner", Username: u.Username, PasswordHash: "hash:pw"}
		}
	}

	res, err := RunLogin(context.Background(), "alice", "pw", h.deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Registered || res.UserID != "winner" {
		t.Fatalf("expected winner's record, got %+v", res)
	}
	if h.metrics[h.deps.Metrics.RegisterConflict] != 1 {
		t.Fatalf("expected conflict metric, got %v", h.metrics)
	}

	h2 := newLoginHarness()
	h2.users.beforeCreate = func(u LoginUser) {
		h2.users.mu.Lock()
		defer h2.users.mu.Unlock()
		h2.users.byName[u.Username] = LoginUser{ID: "winner", Username: u.Username, PasswordHash: "hash:other"}
	}
	if _, err := RunLogin(context.Background(), "alice", "pw", h2.deps); !errors.Is(err, errInvalidCreds) {
		t.Fatalf("expected invalid credentials against winner's password, got %v", err)
	}
}

func TestRunLoginStoreFailuresWrapUnavailable(t *testing.T) {
	h := newLoginHarness()
	h.users.getErr = errors.New("connection refused")
	_, err := RunLogin(context.Background(), "alice", "pw", h.deps)
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected store unavailable from lookup, got %v", err)
	}

	h = newLoginHarness()
	h.users.createErr = errors.New("disk full")
	_, err = RunLogin(context.Background(), "alice", "pw", h.deps)
	if !errors.Is(err, errUnavailable) || errors.Is(err, errConflict) {
		t.Fatalf("expected store unavailable from create, got %v", err)
	}

	h = newLoginHarness()
	h.deps.IssueOrReuseToken = func(context.Context, string, string) (IssuedToken, error) {
		return IssuedToken{}, errUnavailable
	}
	_, err = RunLogin(context.Background(), "alice", "pw", h.deps)
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected token failure to propagate, got %v", err)
	}
}

func TestRunLoginRateLimit(t *testing.T) {
	h := newLoginHarness()
	failures := 0
	resets := 0
	h.deps.CheckLoginRate = func(context.Context, string, string) error {
		if failures >= 2 {
			return errLimited
		}
		return nil
	}
	h.deps.IncrementLoginRate = func(context.Context, string, string) error {
		failures++
		return nil
	}
	h.deps.ResetLoginRate = func(context.Context, string) error {
		resets++
		return nil
	}

	if _, err := RunLogin(context.Background(), "alice", "pw", h.deps); err != nil {
		t.Fatalf("register: %v", err)
	}
	if resets != 1 {
		t.Fatalf("expected counter reset after success, got %d", resets)
	}

	for i := 0; i < 2; i++ {
		if _, err := RunLogin(context.Background(), "alice", "bad", h.deps); !errors.Is(err, errInvalidCreds) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	if _, err := RunLogin(context.Background(), "alice", "pw", h.deps); !errors.Is(err, errLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if h.metrics[h.deps.Metrics.LoginRateLimited] != 1 {
		t.Fatalf("expected rate limit metric, got %v", h.metrics)
	}

	h.deps.CheckLoginRate = func(context.Context, string, string) error {
		return errors.New("redis down")
	}
	if _, err := RunLogin(context.Background(), "alice", "pw", h.deps); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected limiter failure to wrap unavailable, got %v", err)
	}
}

func TestRunLoginUpgradesLegacyHash(t *testing.T) {
	h := newLoginHarness()
	h.deps.PasswordUpgradeOnLogin = true
	h.users.byName["bob"] = LoginUser{ID: "u-bob", Username: "bob", PasswordHash: "legacy:pw"}

	if _, err := RunLogin(context.Background(), "bob", "pw", h.deps); err != nil {
		t.Fatalf("login: %v", err)
	}
	if h.users.updates["u-bob"] != "hash:pw" {
		t.Fatalf("expected upgraded hash, got %v", h.users.updates)
	}
	if h.metrics[h.deps.Metrics.PasswordUpgraded] != 1 {
		t.Fatalf("expected upgrade metric, got %v", h.metrics)
	}

	h.deps.PasswordUpgradeOnLogin = false
	h.users.updates = map[string]string{}
	if _, err := RunLogin(context.Background(), "bob", "pw", h.deps); err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(h.users.updates) != 0 {
		t.Fatal("expected no upgrade when disabled")
	}
}

func TestRunLoginMissingDeps(t *testing.T) {
	_, err := RunLogin(context.Background(), "alice", "pw", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}})
	if !errors.Is(err, errNotReady) {
		t.Fatalf("expected engine not ready, got %v", err)
	}
}
