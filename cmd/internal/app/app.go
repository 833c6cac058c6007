// Package app wires the lobby server runtime: config, logging, persistence, the auth API,
// the presence gateway and the session reaper.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"lobby/cmd/identity"
	authapi "lobby/cmd/internal/auth/api"
	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/metrics"
	"lobby/cmd/internal/realtime"
	"lobby/cmd/security/token"

	"golang.org/x/sync/errgroup"
)

// App is the lobby server runtime. It owns the database handle and every long-lived component.
type App struct {
	cfg Config
	log Logger

	db      *backend
	metrics *metrics.Metrics

	sessions *session.Service
	reaper   *session.Reaper
	auth     *authapi.Handler
	ws       *realtime.Gateway
}

// New constructs a fully wired App from cfg and the subsystem environment.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	hasher, err := token.HasherFromEnv(cfg.RequireTokenHMAC, minSecretBytes)
	if err != nil {
		return nil, err
	}
	pwHasher, err := identity.Argon2idHasherFromEnv()
	if err != nil {
		return nil, fmt.Errorf("password config: %w", err)
	}
	tokens, err := session.NewTokenManager(sessCfg)
	if err != nil {
		return nil, err
	}

	db, err := openBackend(ctx, cfg, hasher, sessCfg.SecretBytes, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		db:      db,
		metrics: metrics.New(),
	}
	a.sessions = session.NewService(sessCfg, db.users, pwHasher, db.sessions, tokens)
	a.reaper = session.NewReaper(db.sessions, sessCfg, log, session.WithPassObserver(a.metrics.ReaperPass))

	a.auth, err = authapi.NewHandler(log, authCfg, a.sessions, authapi.WithMetrics(a.metrics))
	if err != nil {
		db.Close()
		return nil, err
	}

	wsCfg := realtime.GatewayConfigFromEnv(authCfg.CookieSecret)
	wsCfg.CookieName = authCfg.AccessCookieName
	a.ws, err = realtime.NewGateway(log, wsCfg, a.sessions, db.blocks, realtime.WithMetrics(a.metrics))
	if err != nil {
		db.Close()
		return nil, err
	}

	if !hasher.Keyed() {
		log.Warn("security.token_hmac.disabled", "hint", "set "+token.HMACEnvKey+" to key session secret digests")
	}
	return a, nil
}

// Run serves HTTP and runs the reaper until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", ln.Addr().String(), "backend", a.db.kind, "env", a.cfg.Env)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	if a.cfg.ReaperEnabled {
		g.Go(func() error { return a.reaper.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	a.log.Info("server.stopped")
	return err
}

// Reaper exposes the session reaper for one-shot runs.
func (a *App) Reaper() *session.Reaper { return a.reaper }

// Close releases the database handle.
func (a *App) Close() {
	a.db.Close()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
