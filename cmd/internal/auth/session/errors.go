package session

import "errors"

var (
	// ErrUnauthenticated is the single outward error for any credential or session failure.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidDevice is returned when a device id is not a UUID.
	ErrInvalidDevice = errors.New("invalid device id")

	// ErrInvalidToken is returned when a JWT fails signature, expiry, issuer or type checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when no session row matches.
	ErrSessionNotFound = errors.New("session not found")

	// ErrActiveSessionExists is returned by Create when the (user, device) pair already has a
	// valid row; another process won the rotation.
	ErrActiveSessionExists = errors.New("active session already exists for device")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
