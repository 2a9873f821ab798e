package grace

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default process-local exit store. A restart during an
// open exit window forgives it, which is acceptable for this design; use
// the Redis store when that matters.
type MemoryStore struct {
	mu    sync.Mutex
	exits map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exits: make(map[string]time.Time)}
}

func (s *MemoryStore) Get(_ context.Context, userID, sessionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.exits[exitKey(userID, sessionID)]
	return t, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, userID, sessionID string, exitAt time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits[exitKey(userID, sessionID)] = exitAt
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exits, exitKey(userID, sessionID))
	return nil
}

func exitKey(userID, sessionID string) string {
	return sessionID + ":" + userID
}
