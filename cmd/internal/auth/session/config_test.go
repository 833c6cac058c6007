package session

import (
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-0123456789abcdef0123456789"
	testRefreshSecret = "refresh-secret-0123456789abcdef012345678"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("LOBBY_JWT_ACCESS_SECRET", testAccessSecret)
	t.Setenv("LOBBY_JWT_REFRESH_SECRET", testRefreshSecret)
}

func TestLoadConfigFromEnv_MissingSecrets(t *testing.T) {
	t.Setenv("LOBBY_JWT_ACCESS_SECRET", "")
	t.Setenv("LOBBY_JWT_REFRESH_SECRET", testRefreshSecret)
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing access secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortOrSharedSecrets(t *testing.T) {
	t.Setenv("LOBBY_JWT_ACCESS_SECRET", "short")
	t.Setenv("LOBBY_JWT_REFRESH_SECRET", testRefreshSecret)
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}

	t.Setenv("LOBBY_JWT_ACCESS_SECRET", testRefreshSecret)
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for shared secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	setSecrets(t)
	t.Setenv("LOBBY_AUTH_ACCESS_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_SecretBytesBounds(t *testing.T) {
	setSecrets(t)
	for _, v := range []string{"19", "65", "abc"} {
		t.Setenv("LOBBY_AUTH_SESSION_SECRET_BYTES", v)
		if _, err := LoadConfigFromEnv(); err != ErrConfig {
			t.Fatalf("%s: expected ErrConfig, got %v", v, err)
		}
	}
	t.Setenv("LOBBY_AUTH_SESSION_SECRET_BYTES", "20")
	if _, err := LoadConfigFromEnv(); err != nil {
		t.Fatalf("160-bit secrets must be accepted: %v", err)
	}
}

func TestLoadConfigFromEnv_ReaperIntervalBelowRefreshTTL(t *testing.T) {
	setSecrets(t)
	t.Setenv("LOBBY_AUTH_REFRESH_TTL", "48h")
	t.Setenv("LOBBY_REAPER_INTERVAL", "24h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	setSecrets(t)
	t.Setenv("LOBBY_AUTH_ISSUER", "lobby-test")
	t.Setenv("LOBBY_AUTH_ACCESS_TTL", "10m")
	t.Setenv("LOBBY_AUTH_REFRESH_TTL", "48h")
	t.Setenv("LOBBY_AUTH_CLOCK_SKEW", "0s")
	t.Setenv("LOBBY_AUTH_SESSION_SECRET_BYTES", "40")
	t.Setenv("LOBBY_REAPER_INTERVAL", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Issuer != "lobby-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute || cfg.RefreshTokenTTL != 48*time.Hour {
		t.Fatalf("ttl mismatch: %v %v", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 0 {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
	if cfg.SecretBytes != 40 {
		t.Fatalf("secret bytes mismatch: %d", cfg.SecretBytes)
	}
	if cfg.ReaperInterval != cfg.RefreshTokenTTL {
		t.Fatalf("reaper interval should default to refresh ttl, got %v", cfg.ReaperInterval)
	}
}
