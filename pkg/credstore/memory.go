package credstore

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, namespace string, key Key) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[storageKey(namespace, key)], nil
}

func (s *MemoryStore) Set(_ context.Context, namespace string, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[storageKey(namespace, key)] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace string, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, storageKey(namespace, key))
	return nil
}
