package realtime

import (
	"context"
	"sync"
)

// MemoryBlockStore is an in-process BlockStore for tests and ephemeral dev runs.
type MemoryBlockStore struct {
	mu    sync.RWMutex
	pairs map[[2]string]struct{}
}

// NewMemoryBlockStore returns an empty store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{pairs: make(map[[2]string]struct{})}
}

// Block records that blocker blocks blocked.
func (s *MemoryBlockStore) Block(blocker, blocked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[[2]string{blocker, blocked}] = struct{}{}
}

// Unblock removes the directed pair.
func (s *MemoryBlockStore) Unblock(blocker, blocked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pairs, [2]string{blocker, blocked})
}

// BlockedWith implements BlockStore.
func (s *MemoryBlockStore) BlockedWith(_ context.Context, userID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	for p := range s.pairs {
		switch userID {
		case p[0]:
			out[p[1]] = struct{}{}
		case p[1]:
			out[p[0]] = struct{}{}
		}
	}
	return out, nil
}
