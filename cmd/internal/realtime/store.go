// Package realtime contains the presence websocket gateway and its read-only view of the block relation.
package realtime

import "context"

// BlockStore answers the one question presence fan-out needs: which users must not see
// userID, and must not be seen by it.
type BlockStore interface {
	// BlockedWith returns every user that blocks userID or is blocked by it.
	BlockedWith(ctx context.Context, userID string) (map[string]struct{}, error)
}
