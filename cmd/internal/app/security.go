package app

import (
	"errors"
	"fmt"
	"os"

	"lobby/cmd/security/token"
)

const minSecretBytes = 32

// ValidateSecurityConfig enforces the startup security policy and reports every violation at once.
// Secrets are measured in bytes because they are used as raw keys.
func ValidateSecurityConfig(cfg Config) error {
	var errs []error

	for _, key := range []string{"LOBBY_JWT_ACCESS_SECRET", "LOBBY_JWT_REFRESH_SECRET", "LOBBY_COOKIE_SECRET"} {
		switch n := len(os.Getenv(key)); {
		case n == 0:
			errs = append(errs, fmt.Errorf("security policy: %s is missing", key))
		case n < minSecretBytes:
			errs = append(errs, fmt.Errorf("security policy: %s is too short (min %d bytes)", key, minSecretBytes))
		}
	}
	if a := os.Getenv("LOBBY_JWT_ACCESS_SECRET"); a != "" && a == os.Getenv("LOBBY_JWT_REFRESH_SECRET") {
		errs = append(errs, errors.New("security policy: access and refresh JWT secrets must differ"))
	}

	if _, err := token.HasherFromEnv(cfg.RequireTokenHMAC, minSecretBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			errs = append(errs, fmt.Errorf("security policy: LOBBY_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey))
		case errors.Is(err, token.ErrHMACKeyTooShort):
			errs = append(errs, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.HMACEnvKey, minSecretBytes))
		default:
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
