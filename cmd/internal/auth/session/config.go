package session

import (
	"os"
	"strconv"
	"strings"
	"time"

	"lobby/cmd/security/token"
)

const minJWTSecretBytes = 32

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the "iss" claim of both credentials.
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway applied to access token exp/iat checks.
	ClockSkew time.Duration

	// SecretBytes is the entropy of each session secret (20..64).
	SecretBytes int

	AccessSecret  string
	RefreshSecret string

	// ReaperInterval is the period between purge passes. It must not be shorter than
	// RefreshTokenTTL so no row is purged while its refresh credential can still be presented.
	ReaperInterval time.Duration
}

// DefaultConfig returns the defaults without signing secrets.
func DefaultConfig() Config {
	return Config{
		Issuer:          "lobby",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
		SecretBytes:     32,
		ReaperInterval:  7 * 24 * time.Hour,
	}
}

// Validate reports ErrConfig for unusable settings.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Issuer) == "":
		return ErrConfig
	case c.AccessTokenTTL <= 0, c.RefreshTokenTTL <= 0, c.ClockSkew < 0:
		return ErrConfig
	case c.AccessTokenTTL > c.RefreshTokenTTL:
		return ErrConfig
	case c.SecretBytes < token.MinSecretBytes || c.SecretBytes > token.MaxSecretBytes:
		return ErrConfig
	case len(c.AccessSecret) < minJWTSecretBytes, len(c.RefreshSecret) < minJWTSecretBytes:
		return ErrConfig
	case c.AccessSecret == c.RefreshSecret:
		return ErrConfig
	case c.ReaperInterval < c.RefreshTokenTTL:
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - LOBBY_JWT_ACCESS_SECRET, LOBBY_JWT_REFRESH_SECRET (>= 32 bytes, distinct)
//
// Optional:
//   - LOBBY_AUTH_ISSUER
//   - LOBBY_AUTH_ACCESS_TTL, LOBBY_AUTH_REFRESH_TTL, LOBBY_AUTH_CLOCK_SKEW
//   - LOBBY_AUTH_SESSION_SECRET_BYTES
//   - LOBBY_REAPER_INTERVAL (defaults to the refresh TTL)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("LOBBY_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	durations := []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{"LOBBY_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"LOBBY_AUTH_REFRESH_TTL", &cfg.RefreshTokenTTL, false},
		{"LOBBY_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	cfg.ReaperInterval = cfg.RefreshTokenTTL
	if v := strings.TrimSpace(os.Getenv("LOBBY_REAPER_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ReaperInterval = d
	}

	if v := strings.TrimSpace(os.Getenv("LOBBY_AUTH_SESSION_SECRET_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.SecretBytes = n
	}

	cfg.AccessSecret = strings.TrimSpace(os.Getenv("LOBBY_JWT_ACCESS_SECRET"))
	cfg.RefreshSecret = strings.TrimSpace(os.Getenv("LOBBY_JWT_REFRESH_SECRET"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
