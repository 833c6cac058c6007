package realtime

import "time"

const (
	// Presence clients only send tiny control envelopes.
	maxFrameBytes = 4 << 10

	// Heartbeat defaults (overridable via LOBBY_WS_HEARTBEAT_*).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limit (events per window).
	rateLimitEvents = 30
	rateLimitWindow = 10 * time.Second
)
