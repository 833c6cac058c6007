package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy violations returned by Validate and Hash.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
)

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {},
	"12345678": {}, "123456789": {}, "11111111": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {},
	"letmein": {}, "iloveyou": {}, "gamer123": {},
}

// Validate checks the password policy. Length counts runes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak rejects only the obvious cases: one repeated rune, short digit-only PINs
// and a short list of well-known passwords.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 && utf8.RuneCountInString(s) < 12 {
		return true
	}

	_, common := commonPasswords[strings.ToLower(s)]
	return common
}
