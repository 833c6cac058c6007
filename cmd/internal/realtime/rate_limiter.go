package realtime

import (
	"sync"
	"time"
)

// RateLimiter caps inbound frames per connection to limit events in any window.
// It keeps the last limit accepted timestamps in a ring; rejected events take no slot.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	next   int
	window time.Duration
}

// NewRateLimiter falls back to the package defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow records an event at now unless limit events were already accepted inside the window.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := r.ring[r.next]
	if !oldest.IsZero() && oldest.After(now.Add(-r.window)) {
		return false
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
