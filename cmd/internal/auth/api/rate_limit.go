package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxThrottleKeys bounds the failure table; past it, a record sweeps expired keys first.
const maxThrottleKeys = 10_000

// loginThrottle counts failed logins per client IP in a sliding window. It is process-local.
type loginThrottle struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newLoginThrottle(max int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		max:      max,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// check reports whether key is blocked and for how long.
func (t *loginThrottle) check(key string, now time.Time) (bool, time.Duration) {
	if t == nil || key == "" || t.max <= 0 {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := pruneBefore(t.failures[key], now.Add(-t.window))
	if len(kept) == 0 {
		delete(t.failures, key)
		return false, 0
	}
	t.failures[key] = kept
	return evaluateWindowThrottle(now, kept, t.max, t.window)
}

func (t *loginThrottle) recordFailure(key string, now time.Time) {
	if t == nil || key == "" || t.max <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.failures[key]; !ok && len(t.failures) >= maxThrottleKeys {
		t.sweepLocked(now)
	}
	t.failures[key] = append(pruneBefore(t.failures[key], now.Add(-t.window)), now)
}

// reset forgets key after a successful login.
func (t *loginThrottle) reset(key string) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	delete(t.failures, key)
	t.mu.Unlock()
}

func (t *loginThrottle) sweepLocked(now time.Time) {
	cut := now.Add(-t.window)
	for k, ts := range t.failures {
		if kept := pruneBefore(ts, cut); len(kept) == 0 {
			delete(t.failures, k)
		} else {
			t.failures[k] = kept
		}
	}
}

// pruneBefore drops timestamps older than cut. ts is in insertion order.
func pruneBefore(ts []time.Time, cut time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cut) {
		i++
	}
	return ts[i:]
}

// evaluateWindowThrottle blocks when at least max failures fall inside window. The retry delay
// is the time until the oldest counted failure leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	count := 0
	var oldest time.Time
	for _, f := range failures {
		if f.Before(cut) || f.After(now) {
			continue
		}
		count++
		if oldest.IsZero() || f.Before(oldest) {
			oldest = f
		}
	}
	if count < max {
		return false, 0
	}
	retry := oldest.Add(window).Sub(now)
	if retry <= 0 {
		return false, 0
	}
	return true, retry
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
