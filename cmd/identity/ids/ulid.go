// Package ids mints the ULIDs used for users, sessions, connections and envelopes.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is monotonic so ids minted within one millisecond still sort in mint order.
// ulid.MonotonicEntropy is not safe for concurrent use.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a 26-char ULID stamped with now (time.Now when zero).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Valid reports whether id is a canonical ULID string.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Time extracts the creation time embedded in a ULID string.
func Time(id string) (time.Time, bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}
