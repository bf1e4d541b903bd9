package blob

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for tests and DB-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[normalize(path)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	if s == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[normalize(path)]
	return ok, nil
}

func (s *MemoryStore) Put(_ context.Context, path string, content []byte) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(content))
	copy(cp, content)
	s.objects[normalize(path)] = cp
	return nil
}

func normalize(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}
