package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second

	// Origin is required by default and only localhost is allowed.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// GatewayConfig controls the presence gateway. CookieSecret is required.
type GatewayConfig struct {
	CookieSecret string
	CookieName   string

	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	// Liveness comes from heartbeat pings only; a listening client may stay silent indefinitely.
	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns secure defaults without a cookie secret.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		CookieName:       "accessToken",
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// GatewayConfigFromEnv overlays LOBBY_WS_* variables on the defaults.
func GatewayConfigFromEnv(cookieSecret string) GatewayConfig {
	cfg := DefaultGatewayConfig()
	cfg.CookieSecret = cookieSecret

	// InsecureSkipVerify is a dev-only knob for websocket.Accept's own origin check.
	cfg.DevInsecure = envBoolWS("LOBBY_WS_DEV_INSECURE", false)
	cfg.OriginRequired = envBoolWS("LOBBY_WS_ORIGIN_REQUIRED", cfg.OriginRequired)
	cfg.AllowedOrigins = splitCSV(envStringWS("LOBBY_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins))

	cfg.WriteTimeout = envDurationWS("LOBBY_WS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.SendQueueSize = max(envIntWS("LOBBY_WS_SEND_QUEUE", cfg.SendQueueSize), wsMinSendQueueSize)

	cfg.HeartbeatEvery = envDurationWS("LOBBY_WS_HEARTBEAT_INTERVAL", cfg.HeartbeatEvery)
	cfg.HeartbeatTimeout = envDurationWS("LOBBY_WS_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)

	cfg.RateEvents = envIntWS("LOBBY_WS_RATE_EVENTS", cfg.RateEvents)
	cfg.RateWindow = envDurationWS("LOBBY_WS_RATE_WINDOW", cfg.RateWindow)
	return cfg
}

func envStringWS(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBoolWS(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
