package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	maxEmailLen    = 254
)

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername accepts 3..32 characters of letters, digits, '_', '-' and '.'.
func ValidateUsername(s string) error {
	const op = "identity.ValidateUsername"

	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < minUsernameLen || n > maxUsernameLen {
		return invalid(op, "username must be 3 to 32 characters")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return invalid(op, "username may contain only letters, digits, '_', '-' and '.'")
		}
	}
	return nil
}

// ValidateEmail accepts a bare addr-spec ("name@host"), no display name.
func ValidateEmail(s string) error {
	const op = "identity.ValidateEmail"

	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxEmailLen {
		return invalid(op, "email is required")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return invalid(op, "email is malformed")
	}
	return nil
}
