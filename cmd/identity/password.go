package identity

import (
	"errors"

	"lobby/cmd/security/password"
)

// PasswordHasher is the opaque hashing capability used by registration and login.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
	// Burn performs a verification's worth of work without a stored digest.
	Burn(plain string)
}

// Argon2idHasher implements PasswordHasher with security/password.
type Argon2idHasher struct {
	cfg password.Config
}

// NewArgon2idHasher returns a hasher for cfg.
func NewArgon2idHasher(cfg password.Config) Argon2idHasher {
	return Argon2idHasher{cfg: cfg}
}

// Argon2idHasherFromEnv loads LOBBY_PASSWORD_* / LOBBY_ARGON2_* settings.
func Argon2idHasherFromEnv() (Argon2idHasher, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return Argon2idHasher{}, err
	}
	return Argon2idHasher{cfg: cfg}, nil
}

// Hash applies the password policy and hashes plain.
// Policy violations are returned as ErrInvalidInput.
func (h Argon2idHasher) Hash(plain string) (string, error) {
	const op = "identity.HashPassword"

	enc, err := h.cfg.Hash(plain)
	switch {
	case err == nil:
		return enc, nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return "", invalid(op, "password too short")
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", invalid(op, "password too long")
	case errors.Is(err, password.ErrWeakPassword):
		return "", invalid(op, "password too weak")
	default:
		return "", err
	}
}

// Verify checks plain against digest. A malformed digest is a mismatch plus error.
func (h Argon2idHasher) Verify(plain, digest string) (bool, error) {
	return h.cfg.Verify(digest, plain)
}

// Burn spends verification-equivalent CPU for unknown accounts.
func (h Argon2idHasher) Burn(plain string) {
	h.cfg.BurnVerify(plain)
}
