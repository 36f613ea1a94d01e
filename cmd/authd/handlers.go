package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/middleware"
)

const maxBodyBytes = 1 << 20

type server struct {
	engine     *sessionauth.Engine
	log        *slog.Logger
	metrics    http.Handler
	trustProxy bool
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	JTI       string    `json:"jti"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Redis          bool   `json:"redis"`
	RedisLatencyMs int64  `json:"redisLatencyMs"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.Handle("GET /auth/session", middleware.Guard(s.engine)(http.HandlerFunc(s.handleSession)))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return middleware.RequestID(
		middleware.Logging(s.log)(
			middleware.ClientIP(s.trustProxy)(mux),
		),
	)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req sessionauth.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.fail(w, r, "auth.login", fmt.Errorf("%w: malformed request body", sessionauth.ErrInvalidArgument))
		return
	}

	resp, err := s.engine.Login(r.Context(), &req)
	if err != nil {
		s.fail(w, r, "auth.login", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		s.fail(w, r, "auth.logout", fmt.Errorf("%w: missing bearer token", sessionauth.ErrTokenInvalid))
		return
	}

	if err := s.engine.Logout(r.Context(), token); err != nil {
		s.fail(w, r, "auth.logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	p, ok := sessionauth.PrincipalFromContext(r.Context())
	if !ok {
		s.fail(w, r, "auth.session", sessionauth.ErrTokenInvalid)
		return
	}

	info, ok, err := s.engine.ActiveSession(r.Context(), p.UserID)
	if err != nil {
		s.fail(w, r, "auth.session", err)
		return
	}
	if !ok || info.JTI != p.JTI {
		// Revoked or replaced between the gate and the lookup.
		s.fail(w, r, "auth.session", sessionauth.ErrTokenNotActive)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, sessionResponse{
		UserID:    p.UserID,
		Username:  p.Username,
		JTI:       info.JTI,
		IssuedAt:  info.IssuedAt,
		ExpiresIn: info.ExpiresIn,
		ExpiresAt: info.ExpiresAt,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	resp := healthResponse{
		Status:         "ok",
		Redis:          h.RedisAvailable,
		RedisLatencyMs: h.RedisLatency.Milliseconds(),
	}
	status := http.StatusOK
	if !h.RedisAvailable {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, resp)
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	attrs := []any{
		"op", op,
		"req_id", middleware.RequestIDFromContext(r.Context()),
		"kind", sessionauth.ErrorKind(err),
	}
	if sessionauth.ErrorKind(err) == sessionauth.KindInternal {
		s.log.ErrorContext(r.Context(), "request failed", append(attrs, "err", err)...)
	} else if !errors.Is(err, sessionauth.ErrInvalidCredentials) {
		s.log.DebugContext(r.Context(), "request rejected", append(attrs, "err", err)...)
	}
	middleware.WriteError(w, err)
}
