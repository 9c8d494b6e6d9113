package engine

import "sync"

// Shared is the process-wide owner of a Store. Every storage operation,
// reads included, runs inside Do while holding a single mutex, so a request's
// storage work never interleaves with another's.
type Shared struct {
	mu    sync.Mutex
	store *Store
}

func NewShared(store *Store) *Shared {
	return &Shared{store: store}
}

// Do runs fn as one critical section over the store.
func (s *Shared) Do(fn func(*Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.store)
}

func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}
