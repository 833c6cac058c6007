package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"lobby/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
// The pgx pool is owned by the caller; this store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "lobby").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "lobby"}
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

func (s *PostgresStore) users() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

// CreateUser inserts a user. Unique violations become ConflictError{Field}.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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
		CreatedAt:    in.Now.UTC(),
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (
		     id, username, username_norm, email, email_norm, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.UsernameNorm, u.Email, u.EmailNorm, in.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

const pgUserColumns = `id, username, username_norm, email, email_norm, created_at`

func scanPGUser(row pgx.Row, withHash bool) (UserAuth, error) {
	var ua UserAuth
	dest := []any{&ua.ID, &ua.Username, &ua.UsernameNorm, &ua.Email, &ua.EmailNorm, &ua.CreatedAt}
	if withHash {
		dest = append(dest, &ua.PasswordHash)
	}
	if err := row.Scan(dest...); err != nil {
		return UserAuth{}, err
	}
	ua.CreatedAt = ua.CreatedAt.UTC()
	return ua, nil
}

// GetUserByID loads a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	ua, err := scanPGUser(s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM `+s.users()+` WHERE id = $1`, id), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

// GetUserAuthByUsername loads a user and password hash by case-insensitive username.
func (s *PostgresStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	return s.getAuth(ctx, "identity.GetUserAuthByUsername", "username_norm", NormalizeUsername(username))
}

// GetUserAuthByEmail loads a user and password hash by case-insensitive email.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	return s.getAuth(ctx, "identity.GetUserAuthByEmail", "email_norm", NormalizeEmail(email))
}

func (s *PostgresStore) getAuth(ctx context.Context, op, column, value string) (UserAuth, error) {
	if value == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	ua, err := scanPGUser(s.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+`, password_hash FROM `+s.users()+` WHERE `+column+` = $1`, value), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	return ua, err
}

// FindConflict reports which of username/email is already registered.
func (s *PostgresStore) FindConflict(ctx context.Context, username, email string) (string, error) {
	var userTaken, emailTaken bool
	err := s.pool.QueryRow(ctx,
		`SELECT
		     EXISTS (SELECT 1 FROM `+s.users()+` WHERE username_norm = $1),
		     EXISTS (SELECT 1 FROM `+s.users()+` WHERE email_norm = $2)`,
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

// pgClassifyUniqueViolation maps SQLSTATE 23505 to a logical field using the constraint name.
func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return uniqueField(pgErr.ConstraintName), true
}
