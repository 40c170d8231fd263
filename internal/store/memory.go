package store

import (
	"context"
	"sync"
)

// MemoryStore implements Store with an in-process map. It serves two
// roles: the degraded mode used when Redis is unreachable at startup
// (the site keeps working with process-local snapshots), and the test
// double for everything built on the store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
	subs map[int]chan Change
	next int
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
		subs: make(map[int]chan Change),
	}
}

// GetItem returns the value stored under key.
func (s *MemoryStore) GetItem(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// SetItem replaces the value under key and notifies subscribers.
func (s *MemoryStore) SetItem(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.notifyLocked(key)
	s.mu.Unlock()
	return nil
}

// RemoveItem deletes key and notifies subscribers.
func (s *MemoryStore) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.notifyLocked(key)
	s.mu.Unlock()
	return nil
}

// notifyLocked fans the change out without blocking; a subscriber
// that stopped draining simply misses the notification and is caught
// up by the fingerprint poll.
func (s *MemoryStore) notifyLocked(key string) {
	for _, ch := range s.subs {
		select {
		case ch <- Change{Key: key}:
		default:
		}
	}
}

// Subscribe registers a change listener. The cancel function removes
// the listener and closes its channel.
func (s *MemoryStore) Subscribe(_ context.Context) (<-chan Change, func(), error) {
	s.mu.Lock()
	id := s.next
	s.next++
	ch := make(chan Change, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}
