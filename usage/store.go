package usage

import "sync"

// MemoryStore keeps counters in process memory. Suited to tests and
// premium sessions where persistence does not matter.
type MemoryStore struct {
	mu       sync.Mutex
	counters Counters
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, nil
}

func (s *MemoryStore) Save(c Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = c
	return nil
}
