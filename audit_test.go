package sessionauth_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, sessionauth.AuditEvent) {
	s.count.Add(1)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	te := newTestEngine(t, nil, func(b *sessionauth.Builder) {
		b.WithAuditSink(sink)
	})

	login(t, te.engine, "alice", "correct-horse")
	_, _ = te.engine.Login(context.Background(), &sessionauth.LoginRequest{Username: "alice", Password: "wrong"})
	te.engine.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", got)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := sessionauth.NewChannelSink(64)
	te := newTestEngine(t, func(cfg *sessionauth.Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
	}, func(b *sessionauth.Builder) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()
	const secret = "correct-horse-battery"

	resp := login(t, te.engine, "alice", secret)
	_, _ = te.engine.Login(ctx, &sessionauth.LoginRequest{Username: "alice", Password: secret + "x"})
	if _, err := te.engine.Authenticate(ctx, resp.Token+"tampered"); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
	if err := te.engine.Logout(ctx, resp.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	user, err := te.users.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	te.engine.Close()

	needles := []string{secret, resp.Token, user.PasswordHash}
	var events []sessionauth.AuditEvent
	for len(sink.Events()) > 0 {
		events = append(events, <-sink.Events())
	}
	if len(events) < 5 {
		t.Fatalf("expected at least 5 audit events, got %d", len(events))
	}

	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) || strings.Contains(ev.SessionID, needle) {
				t.Fatalf("sensitive value leaked in %s event", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in %s metadata", ev.EventType)
				}
			}
		}
	}
}

func TestAuditJSONWriterSinkThroughEngine(t *testing.T) {
	var buf syncBuffer
	te := newTestEngine(t, func(cfg *sessionauth.Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.DropIfFull = false
	}, func(b *sessionauth.Builder) {
		b.WithAuditSink(sessionauth.NewJSONWriterSink(&buf))
	})

	resp := login(t, te.engine, "bob", "correct-horse")
	if err := te.engine.Logout(context.Background(), resp.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	te.engine.Close()

	out := buf.String()
	for _, want := range []string{`"event_type":"user_registered"`, `"event_type":"login_success"`, `"event_type":"logout"`, `"username":"bob"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected JSON lines to contain %s, got:\n%s", want, out)
		}
	}
	if got := strings.Count(strings.TrimSpace(out), "\n") + 1; got != 3 {
		t.Fatalf("expected 3 JSON lines, got %d", got)
	}
}

type stuckSink struct {
	release chan struct{}
}

func (s *stuckSink) Emit(context.Context, sessionauth.AuditEvent) {
	<-s.release
}

func TestAuthenticateNeverWaitsOnAuditBackpressure(t *testing.T) {
	sink := &stuckSink{release: make(chan struct{})}
	te := newTestEngine(t, func(cfg *sessionauth.Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 1
		cfg.Audit.DropIfFull = false
	}, func(b *sessionauth.Builder) {
		b.WithAuditSink(sink)
	})
	t.Cleanup(func() { close(sink.release) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, _ = te.engine.Authenticate(context.Background(), "garbage")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Authenticate blocked behind a stuck audit sink")
	}
	if dropped := te.engine.AuditDropped(); dropped < 8 {
		t.Fatalf("expected rejected-token events to be dropped, got %d", dropped)
	}
}
