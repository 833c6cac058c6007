package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"lobby/cmd/identity/ids"
	"lobby/cmd/security/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (lobby.sessions).
type PostgresStore struct {
	pool        *pgxpool.Pool
	hasher      token.Hasher
	secretBytes int
	table       string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the sessions table (default "lobby").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.table = pgx.Identifier{schema, "sessions"}.Sanitize()
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, hasher token.Hasher, secretBytes int, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	if secretBytes < token.MinSecretBytes || secretBytes > token.MaxSecretBytes {
		return nil, ErrConfig
	}
	st := &PostgresStore{
		pool:        pool,
		hasher:      hasher,
		secretBytes: secretBytes,
		table:       pgx.Identifier{"lobby", "sessions"}.Sanitize(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

const pgSessionColumns = `id, secret_hash, user_id, device_id,
	COALESCE(issued_from_ip, ''), COALESCE(user_agent, ''), valid, created_at, updated_at`

func scanPGSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.SecretHash, &s.UserID, &s.DeviceID,
		&s.IssuedFromIP, &s.UserAgent, &s.Valid, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

// FindActive returns the valid session for (userID, deviceID).
func (s *PostgresStore) FindActive(ctx context.Context, userID, deviceID string) (Session, error) {
	return scanPGSession(s.pool.QueryRow(ctx, `
		SELECT `+pgSessionColumns+`
		FROM `+s.table+`
		WHERE user_id = $1 AND device_id = $2 AND valid
	`, userID, deviceID))
}

// FindByUserAndSecret looks a session up by the hash of secret, scoped to userID.
func (s *PostgresStore) FindByUserAndSecret(ctx context.Context, userID, secret string) (Session, error) {
	if secret == "" {
		return Session{}, ErrSessionNotFound
	}
	return scanPGSession(s.pool.QueryRow(ctx, `
		SELECT `+pgSessionColumns+`
		FROM `+s.table+`
		WHERE user_id = $1 AND secret_hash = $2
	`, userID, s.hasher.Hash(secret)))
}

// Create inserts a valid session with a fresh secret.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, in CreateInput) (Session, error) {
	secret, err := token.NewSecret(s.secretBytes)
	if err != nil {
		return Session{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	// timestamptz keeps microseconds.
	ts := now.UTC().Truncate(time.Microsecond)
	out := Session{
		ID:           id,
		Secret:       secret,
		SecretHash:   s.hasher.Hash(secret),
		UserID:       in.UserID,
		DeviceID:     in.DeviceID,
		IssuedFromIP: in.IP,
		UserAgent:    in.UserAgent,
		Valid:        true,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, secret_hash, user_id, device_id, issued_from_ip, user_agent, valid, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
	`, out.ID, out.SecretHash, out.UserID, out.DeviceID, nullIfEmpty(out.IssuedFromIP), nullIfEmpty(out.UserAgent), ts)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_sessions_active_device" {
			return Session{}, ErrActiveSessionExists
		}
		return Session{}, err
	}
	return out, nil
}

// Invalidate flips the row holding secret to invalid.
func (s *PostgresStore) Invalidate(ctx context.Context, now time.Time, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	return s.invalidate(ctx, now, "secret_hash", s.hasher.Hash(secret))
}

// InvalidateByID flips the row with sessionID to invalid.
func (s *PostgresStore) InvalidateByID(ctx context.Context, now time.Time, sessionID string) (bool, error) {
	return s.invalidate(ctx, now, "id", sessionID)
}

func (s *PostgresStore) invalidate(ctx context.Context, now time.Time, column, value string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET valid = false, updated_at = $2
		WHERE `+column+` = $1 AND valid
	`, value, now.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteByUserAndDevice removes all rows of the pair.
func (s *PostgresStore) DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table+` WHERE user_id = $1 AND device_id = $2
	`, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeStaleSince deletes rows whose updated_at is strictly before cutoff.
func (s *PostgresStore) PurgeStaleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table+` WHERE updated_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
