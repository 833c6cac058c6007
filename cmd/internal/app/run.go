package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/storage"
	"lobby/cmd/security/token"
)

// Serve is the `lobby serve` entrypoint. It returns an error instead of calling os.Exit
// so defers run.
func Serve(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("server.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}

// Migrate is the `lobby migrate` entrypoint: it applies pending migrations and exits.
func Migrate(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		log.Info("db.migrate.done", "backend", "sqlite", "path", cfg.SQLitePath)
		return db.Close()
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: connect postgres: %w", err)
	}
	defer pool.Close()

	applied, err := storage.MigratePostgres(ctx, pool)
	if err != nil {
		return err
	}
	for _, m := range applied {
		log.Info("db.migrate.applied", "version", m.Version, "source", m.Source, "duration", m.Duration)
	}
	log.Info("db.migrate.done", "backend", "postgres", "applied", len(applied))
	return nil
}

// Reap is the `lobby reap` entrypoint for external schedulers. A zero cutoff means
// now minus the refresh TTL.
func Reap(ctx context.Context, cutoff time.Time) (int64, error) {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return 0, fmt.Errorf("session config: %w", err)
	}
	hasher, err := token.HasherFromEnv(cfg.RequireTokenHMAC, minSecretBytes)
	if err != nil {
		return 0, err
	}

	cfg.AutoMigrate = false
	db, err := openBackend(ctx, cfg, hasher, sessCfg.SecretBytes, log)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	reaper := session.NewReaper(db.sessions, sessCfg, log)
	if cutoff.IsZero() {
		return reaper.RunOnce(ctx, time.Now().UTC())
	}
	return reaper.PurgeBefore(ctx, cutoff.UTC())
}
