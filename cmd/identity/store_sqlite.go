package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lobby/cmd/identity/ids"
	"lobby/cmd/internal/storage"
)

// SQLiteStore implements Store on a migrated SQLite database (see storage.OpenSQLite).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db. The caller owns db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	return &SQLiteStore{db: db}, nil
}

// CreateUser inserts a user. Unique violations become ConflictError{Field}.
func (s *SQLiteStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Username:     in.Username,
		UsernameNorm: NormalizeUsername(in.Username),
		Email:        in.Email,
		EmailNorm:    NormalizeEmail(in.Email),
		CreatedAt:    storage.FromUnixMilli(storage.UnixMilli(in.Now)),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, username_norm, email, email_norm, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.UsernameNorm, u.Email, u.EmailNorm, in.PasswordHash, storage.UnixMilli(u.CreatedAt),
	)
	if err != nil {
		if col, ok := storage.SQLiteUniqueColumn(err); ok {
			return User{}, ConflictError{Op: op, Field: uniqueField(col)}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

const sqliteUserColumns = `id, username, username_norm, email, email_norm, created_at`

func scanSQLiteUser(row *sql.Row, withHash bool) (UserAuth, error) {
	var (
		ua      UserAuth
		created int64
	)
	dest := []any{&ua.ID, &ua.Username, &ua.UsernameNorm, &ua.Email, &ua.EmailNorm, &created}
	if withHash {
		dest = append(dest, &ua.PasswordHash)
	}
	if err := row.Scan(dest...); err != nil {
		return UserAuth{}, err
	}
	ua.CreatedAt = storage.FromUnixMilli(created)
	return ua, nil
}

// GetUserByID loads a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	ua, err := scanSQLiteUser(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id), false)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

// GetUserAuthByUsername loads a user and password hash by case-insensitive username.
func (s *SQLiteStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	return s.getAuth(ctx, "identity.GetUserAuthByUsername", "username_norm", NormalizeUsername(username))
}

// GetUserAuthByEmail loads a user and password hash by case-insensitive email.
func (s *SQLiteStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	return s.getAuth(ctx, "identity.GetUserAuthByEmail", "email_norm", NormalizeEmail(email))
}

func (s *SQLiteStore) getAuth(ctx context.Context, op, column, value string) (UserAuth, error) {
	if value == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	ua, err := scanSQLiteUser(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+`, password_hash FROM users WHERE `+column+` = ?`, value), true)
	if errors.Is(err, sql.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	return ua, err
}

// FindConflict reports which of username/email is already registered.
func (s *SQLiteStore) FindConflict(ctx context.Context, username, email string) (string, error) {
	var userTaken, emailTaken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT
		     EXISTS (SELECT 1 FROM users WHERE username_norm = ?),
		     EXISTS (SELECT 1 FROM users WHERE email_norm = ?)`,
		NormalizeUsername(username), NormalizeEmail(email),
	).Scan(&userTaken, &emailTaken)
	if err != nil {
		return "", err
	}
	switch {
	case userTaken:
		return "username", nil
	case emailTaken:
		return "email", nil
	}
	return "", nil
}
