// Package presence tracks which users currently hold at least one live connection.
package presence

import (
	"sort"
	"sync"
)

// Handle is one live connection. HandleID must be unique among a user's connections.
type Handle interface {
	HandleID() string
}

// Registry maps user ids to their set of connection handles.
// All methods are safe for concurrent use and return copies.
type Registry[H Handle] struct {
	mu    sync.RWMutex
	users map[string]map[string]H
}

// NewRegistry returns an empty registry.
func NewRegistry[H Handle]() *Registry[H] {
	return &Registry[H]{users: make(map[string]map[string]H)}
}

// Register adds h under userID and reports whether it is the user's first connection.
// Registering the same handle twice is a no-op.
func (r *Registry[H]) Register(userID string, h H) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]H, 1)
		r.users[userID] = set
	}
	set[h.HandleID()] = h
	return !ok
}

// Unregister removes h and reports whether the user has no connections left.
// Removing an unknown handle reports false.
func (r *Registry[H]) Unregister(userID string, h H) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return false
	}
	id := h.HandleID()
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// HandlesFor returns the user's connections, or nil when offline.
func (r *Registry[H]) HandlesFor(userID string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]H, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// IsOnline reports whether userID has at least one connection.
func (r *Registry[H]) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUsers returns the sorted ids of every online user.
func (r *Registry[H]) OnlineUsers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of online users.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
