package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local store; transcripts are lost on exit.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Transcript
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Transcript)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Transcript, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.m[key]
	return tr.clone(), ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, tr Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = tr.clone()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
