package store

import "sync"

// MemoryStore is an in-process tile store with the same write-once
// semantics as the persistent backends. Useful for tests and for
// short-lived sessions that should not touch disk.
type MemoryStore struct {
	mu    sync.Mutex
	tiles map[Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiles: make(map[Key][]byte),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(k Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.tiles[k]
	return data, ok, nil
}

func (s *MemoryStore) Put(k Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiles[k]; ok {
		return nil
	}
	s.tiles[k] = data
	return nil
}

// Len reports the number of stored tiles.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}
