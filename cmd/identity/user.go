package identity

import (
	"context"
	"strings"
	"time"
)

// User is a registered player account.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string
	CreatedAt    time.Time
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile returns the public projection of u.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

// UserAuth is a user row together with its password hash. It never leaves the auth layer.
type UserAuth struct {
	User
	PasswordHash string
}

// CreateUserInput is a registration request with an already-hashed password.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the user directory.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// FindConflict returns "username" or "email" if either is already registered, "" otherwise.
	FindConflict(ctx context.Context, username, email string) (string, error)
}

// validateCreate checks and normalizes a CreateUserInput for any Store implementation.
func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := ValidateUsername(in.Username); err != nil {
		return in, err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return in, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return in, invalid(op, "password hash is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

// uniqueField maps a constraint or column name to the logical conflicting field.
func uniqueField(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.Contains(name, "username"):
		return "username"
	case strings.Contains(name, "email"):
		return "email"
	default:
		return "unique"
	}
}
