package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lobby/cmd/identity"
	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/realtime"
	"lobby/cmd/internal/storage"
	"lobby/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// backend is the persistence selected at startup: Postgres when a URL is configured, SQLite otherwise.
// The app owns the pool or handle; stores built on it never close it.
type backend struct {
	kind   string
	pool   *pgxpool.Pool
	sqlite *sql.DB

	users    identity.Store
	sessions session.Store
	blocks   realtime.BlockStore
}

func openBackend(ctx context.Context, cfg Config, hasher token.Hasher, secretBytes int, log Logger) (*backend, error) {
	if cfg.DatabaseURL == "" {
		return openSQLiteBackend(ctx, cfg, hasher, secretBytes, log)
	}
	return openPostgresBackend(ctx, cfg, hasher, secretBytes, log)
}

func openPostgresBackend(ctx context.Context, cfg Config, hasher token.Hasher, secretBytes int, log Logger) (*backend, error) {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect postgres: %w", err)
	}
	b := &backend{kind: "postgres", pool: pool}

	if cfg.AutoMigrate {
		applied, err := storage.MigratePostgres(ctx, pool)
		if err != nil {
			b.Close()
			return nil, err
		}
		log.Info("db.migrate.done", "backend", b.kind, "applied", len(applied))
	}

	if b.users, err = identity.NewPostgresStore(pool); err != nil {
		b.Close()
		return nil, err
	}
	if b.sessions, err = session.NewPostgresStore(pool, hasher, secretBytes); err != nil {
		b.Close()
		return nil, err
	}
	if b.blocks, err = realtime.NewPostgresBlockStore(pool); err != nil {
		b.Close()
		return nil, err
	}

	log.Info("db.enabled", "backend", b.kind)
	return b, nil
}

func openSQLiteBackend(ctx context.Context, cfg Config, hasher token.Hasher, secretBytes int, log Logger) (*backend, error) {
	db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	b := &backend{kind: "sqlite", sqlite: db}

	if b.users, err = identity.NewSQLiteStore(db); err != nil {
		b.Close()
		return nil, err
	}
	if b.sessions, err = session.NewSQLiteStore(db, hasher, secretBytes); err != nil {
		b.Close()
		return nil, err
	}
	if b.blocks, err = realtime.NewSQLiteBlockStore(db); err != nil {
		b.Close()
		return nil, err
	}

	log.Info("db.enabled", "backend", b.kind, "path", cfg.SQLitePath)
	return b, nil
}

// Ping reports whether the backend can serve queries within timeout.
func (b *backend) Ping(ctx context.Context, timeout time.Duration) error {
	if b.pool != nil {
		return PingDB(ctx, b.pool, timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.sqlite.PingContext(ctx)
}

func (b *backend) Close() {
	if b == nil {
		return
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
}
