package app

import (
	"strings"
	"time"
)

// Config contains the server runtime configuration loaded from environment variables.
// Subsystem settings (session, auth API, websocket) are loaded by their own packages.
type Config struct {
	Env       string
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects Postgres. When empty the server runs on SQLite at SQLitePath.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	// AutoMigrate applies pending Postgres migrations at startup. SQLite always migrates on open.
	AutoMigrate bool

	ReaperEnabled bool

	// RequireTokenHMAC makes LOBBY_TOKEN_HMAC_KEY mandatory for session secret digests.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	env := strings.ToLower(EnvString("LOBBY_ENV", "development"))
	return Config{
		Env:       env,
		HTTPAddr:  EnvString("LOBBY_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("LOBBY_LOG_LEVEL", "info"),
		LogFormat: EnvString("LOBBY_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LOBBY_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LOBBY_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LOBBY_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LOBBY_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("LOBBY_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    EnvInt("LOBBY_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("LOBBY_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("LOBBY_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LOBBY_DB_MIN_CONNS", 0),
		SQLitePath:  EnvString("LOBBY_SQLITE_PATH", "lobby.db"),
		AutoMigrate: EnvBool("LOBBY_DB_AUTO_MIGRATE", true),

		ReaperEnabled: EnvBool("LOBBY_REAPER_ENABLED", true),

		RequireTokenHMAC: EnvBool("LOBBY_REQUIRE_TOKEN_HMAC", env == "production"),

		CORSAllowedOrigins:   EnvCSV("LOBBY_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("LOBBY_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("LOBBY_CORS_MAX_AGE", 600),
	}
}

// Production reports whether the server runs with production defaults.
func (c Config) Production() bool { return c.Env == "production" }
