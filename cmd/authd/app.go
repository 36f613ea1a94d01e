package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/metrics/export/prometheus"
	"github.com/MrEthical07/sessionauth/userstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// app owns the process resources: Redis client, optional Postgres pool,
// engine and HTTP server.
type app struct {
	cfg    fileConfig
	log    *slog.Logger
	redis  *redis.Client
	pool   *pgxpool.Pool
	engine *sessionauth.Engine
	srv    *http.Server
}

func newApp(ctx context.Context, fc fileConfig, log *slog.Logger) (*app, error) {
	engineCfg, err := fc.engineConfig()
	if err != nil {
		return nil, err
	}
	for _, w := range engineCfg.Lint().AtLeast(sessionauth.LintWarn) {
		log.Warn("config.lint", "code", w.Code, "severity", w.Severity.String(), "msg", w.Message)
	}

	opts, err := redis.ParseURL(fc.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	a := &app{cfg: fc, log: log, redis: redis.NewClient(opts)}

	users, err := a.newCredentialStore(ctx)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	engine, err := sessionauth.New().
		WithConfig(engineCfg).
		WithRedis(a.redis).
		WithCredentialStore(users).
		WithAuditSink(sessionauth.NewSlogSink(log.With("component", "audit"))).
		Build()
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.engine = engine

	s := &server{engine: engine, log: log, trustProxy: fc.HTTP.TrustProxy}
	if engineCfg.Metrics.Enabled {
		s.metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}

	a.srv = &http.Server{
		Addr:              fc.HTTP.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

func (a *app) newCredentialStore(ctx context.Context) (sessionauth.CredentialStore, error) {
	if a.cfg.Database.URL == "" {
		a.log.Info("db.disabled.memory_store")
		return userstore.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.pool = pool

	store, err := userstore.NewPostgres(pool,
		userstore.WithSchema(a.cfg.Database.Schema),
		userstore.WithTable(a.cfg.Database.Table),
	)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.Database.Schema, "table", a.cfg.Database.Table)
	return store, nil
}

// run serves until ctx is canceled or the listener fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	a.log.Info("server.start", "addr", a.cfg.HTTP.Addr, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case serveErr = <-errCh:
		a.log.Error("server.fail", "err", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	err := errors.Join(serveErr, a.srv.Shutdown(shutdownCtx), a.close())
	if err == nil {
		a.log.Info("server.stopped")
	}
	return err
}

func (a *app) close() error {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
