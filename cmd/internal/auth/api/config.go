package authapi

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const minCookieSecretBytes = 32

// ErrConfig is returned for unusable auth API settings.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy    bool
	MaxBodyBytes  int64
	LoginIPMax    int
	LoginIPWindow time.Duration

	// CookieSecret signs both session cookies. The websocket gateway verifies with the same value.
	CookieSecret      string
	AccessCookieName  string
	RefreshCookieName string
	RefreshCookiePath string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

// DefaultConfig returns the defaults without a cookie secret.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		LoginIPMax:        20,
		LoginIPWindow:     5 * time.Minute,
		AccessCookieName:  "accessToken",
		RefreshCookieName: "refreshToken",
		RefreshCookiePath: "/auth/refresh",
		CookieSameSite:    http.SameSiteLaxMode,
	}
}

// Validate reports ErrConfig for unusable settings.
func (c Config) Validate() error {
	switch {
	case len(c.CookieSecret) < minCookieSecretBytes:
		return ErrConfig
	case strings.TrimSpace(c.AccessCookieName) == "", strings.TrimSpace(c.RefreshCookieName) == "":
		return ErrConfig
	case c.AccessCookieName == c.RefreshCookieName:
		return ErrConfig
	case !strings.HasPrefix(c.RefreshCookiePath, "/"):
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
// Secure cookies default on when LOBBY_ENV is production.
func LoadConfigFromEnv() (Config, error) {
	def := DefaultConfig()
	production := strings.EqualFold(strings.TrimSpace(os.Getenv("LOBBY_ENV")), "production")

	cfg := Config{
		TrustProxy:        envBool("LOBBY_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("LOBBY_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		LoginIPMax:        envInt("LOBBY_AUTH_LOGIN_IP_MAX", def.LoginIPMax),
		LoginIPWindow:     envDuration("LOBBY_AUTH_LOGIN_IP_WINDOW", def.LoginIPWindow),
		CookieSecret:      os.Getenv("LOBBY_COOKIE_SECRET"),
		AccessCookieName:  envString("LOBBY_AUTH_ACCESS_COOKIE", def.AccessCookieName),
		RefreshCookieName: envString("LOBBY_AUTH_REFRESH_COOKIE", def.RefreshCookieName),
		RefreshCookiePath: envString("LOBBY_AUTH_REFRESH_COOKIE_PATH", def.RefreshCookiePath),
		CookieDomain:      envString("LOBBY_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:      envBool("LOBBY_AUTH_COOKIE_SECURE", production),
		CookieSameSite:    def.CookieSameSite,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
