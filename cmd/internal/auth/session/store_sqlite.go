package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lobby/cmd/identity/ids"
	"lobby/cmd/internal/storage"
	"lobby/cmd/security/token"
)

// SQLiteStore implements Store on a migrated SQLite database.
type SQLiteStore struct {
	db          *sql.DB
	hasher      token.Hasher
	secretBytes int
}

// NewSQLiteStore wraps db. The caller owns db.
func NewSQLiteStore(db *sql.DB, hasher token.Hasher, secretBytes int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: nil db")
	}
	if secretBytes < token.MinSecretBytes || secretBytes > token.MaxSecretBytes {
		return nil, ErrConfig
	}
	return &SQLiteStore{db: db, hasher: hasher, secretBytes: secretBytes}, nil
}

const sqliteSessionColumns = `id, secret_hash, user_id, device_id,
	COALESCE(issued_from_ip, ''), COALESCE(user_agent, ''), valid, created_at, updated_at`

func scanSQLiteSession(row *sql.Row) (Session, error) {
	var (
		s                Session
		created, updated int64
	)
	err := row.Scan(&s.ID, &s.SecretHash, &s.UserID, &s.DeviceID,
		&s.IssuedFromIP, &s.UserAgent, &s.Valid, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	s.CreatedAt = storage.FromUnixMilli(created)
	s.UpdatedAt = storage.FromUnixMilli(updated)
	return s, nil
}

// FindActive returns the valid session for (userID, deviceID).
func (s *SQLiteStore) FindActive(ctx context.Context, userID, deviceID string) (Session, error) {
	return scanSQLiteSession(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions
		 WHERE user_id = ? AND device_id = ? AND valid = 1`, userID, deviceID))
}

// FindByUserAndSecret looks a session up by the hash of secret, scoped to userID.
func (s *SQLiteStore) FindByUserAndSecret(ctx context.Context, userID, secret string) (Session, error) {
	if secret == "" {
		return Session{}, ErrSessionNotFound
	}
	return scanSQLiteSession(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions
		 WHERE user_id = ? AND secret_hash = ?`, userID, s.hasher.Hash(secret)))
}

// Create inserts a valid session with a fresh secret.
func (s *SQLiteStore) Create(ctx context.Context, now time.Time, in CreateInput) (Session, error) {
	secret, err := token.NewSecret(s.secretBytes)
	if err != nil {
		return Session{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	ts := storage.FromUnixMilli(storage.UnixMilli(now))
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, secret_hash, user_id, device_id, issued_from_ip, user_agent, valid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		out.ID, out.SecretHash, out.UserID, out.DeviceID,
		nullIfEmpty(out.IssuedFromIP), nullIfEmpty(out.UserAgent),
		storage.UnixMilli(ts), storage.UnixMilli(ts),
	)
	if err != nil {
		if col, ok := storage.SQLiteUniqueColumn(err); ok && col != "secret_hash" {
			return Session{}, ErrActiveSessionExists
		}
		return Session{}, fmt.Errorf("session: insert: %w", err)
	}
	return out, nil
}

// Invalidate flips the row holding secret to invalid.
func (s *SQLiteStore) Invalidate(ctx context.Context, now time.Time, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	return s.invalidate(ctx, now, "secret_hash", s.hasher.Hash(secret))
}

// InvalidateByID flips the row with sessionID to invalid.
func (s *SQLiteStore) InvalidateByID(ctx context.Context, now time.Time, sessionID string) (bool, error) {
	return s.invalidate(ctx, now, "id", sessionID)
}

func (s *SQLiteStore) invalidate(ctx context.Context, now time.Time, column, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET valid = 0, updated_at = ? WHERE `+column+` = ? AND valid = 1`,
		storage.UnixMilli(now), value)
	if err != nil {
		return false, fmt.Errorf("session: invalidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByUserAndDevice removes all rows of the pair.
func (s *SQLiteStore) DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return 0, fmt.Errorf("session: delete: %w", err)
	}
	return res.RowsAffected()
}

// PurgeStaleSince deletes rows whose updated_at is strictly before cutoff.
func (s *SQLiteStore) PurgeStaleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, storage.UnixMilli(cutoff))
	if err != nil {
		return 0, fmt.Errorf("session: purge: %w", err)
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
