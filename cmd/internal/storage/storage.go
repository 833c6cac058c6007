// Package storage opens the relational backends and applies the embedded schema migrations.
//
// Postgres is the production store; SQLite backs local development and tests.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// DefaultSchema is the Postgres schema created by the migrations.
const DefaultSchema = "lobby"

// ErrUnknownDialect is returned for a dialect other than postgres or sqlite.
var ErrUnknownDialect = errors.New("storage: unknown dialect")

// MigrationResult describes one applied migration.
type MigrationResult struct {
	Version  int64
	Source   string
	Duration time.Duration
}

func newProvider(dialect goose.Dialect, db *sql.DB) (*goose.Provider, error) {
	var dir string
	switch dialect {
	case goose.DialectPostgres:
		dir = "migrations/postgres"
	case goose.DialectSQLite3:
		dir = "migrations/sqlite"
	default:
		return nil, ErrUnknownDialect
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, db, sub)
}

func up(ctx context.Context, dialect goose.Dialect, db *sql.DB) ([]MigrationResult, error) {
	p, err := newProvider(dialect, db)
	if err != nil {
		return nil, fmt.Errorf("storage: goose provider: %w", err)
	}
	res, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: goose up: %w", err)
	}
	out := make([]MigrationResult, 0, len(res))
	for _, r := range res {
		out = append(out, MigrationResult{
			Version:  r.Source.Version,
			Source:   r.Source.Path,
			Duration: r.Duration,
		})
	}
	return out, nil
}

// MigratePostgres applies pending migrations through a database/sql view of pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) ([]MigrationResult, error) {
	if pool == nil {
		return nil, errors.New("storage: nil pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	return up(ctx, goose.DialectPostgres, db)
}

// MigrateSQLite applies pending migrations to db.
func MigrateSQLite(ctx context.Context, db *sql.DB) ([]MigrationResult, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	return up(ctx, goose.DialectSQLite3, db)
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA foreign_keys = ON;",
	"PRAGMA busy_timeout = 5000;",
}

// OpenSQLite opens path (":memory:" for an ephemeral database) and migrates it.
// The pool is pinned to one connection: SQLite has a single writer and an in-memory
// database lives only as long as its connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", strings.TrimSuffix(p, ";"), err)
		}
	}
	if _, err := MigrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteUniqueColumn reports whether err is a SQLite unique-constraint violation and,
// if so, the offending column (e.g. "username_norm").
func SQLiteUniqueColumn(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	// "constraint failed: UNIQUE constraint failed: users.username_norm (2067)"
	msg := se.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}
	if i := strings.LastIndex(msg, ":"); i >= 0 {
		msg = msg[i+1:]
	}
	if i := strings.Index(msg, "("); i >= 0 {
		msg = msg[:i]
	}
	col := strings.TrimSpace(msg)
	if i := strings.IndexByte(col, ','); i >= 0 {
		col = col[:i]
	}
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		col = col[i+1:]
	}
	return col, true
}

// UnixMilli encodes t for SQLite INTEGER time columns.
func UnixMilli(t time.Time) int64 { return t.UTC().UnixMilli() }

// FromUnixMilli decodes a stored SQLite timestamp.
func FromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
