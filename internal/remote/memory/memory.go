// Package memory provides an in-memory remote.Store used by tests.
package memory

import (
	"context"
	"sync"

	"leaflet-sync/internal/remote"
)

type Store struct {
	mu       sync.RWMutex
	indexes  map[string][]byte
	contents map[string]string
}

func New() *Store {
	return &Store{
		indexes:  make(map[string][]byte),
		contents: make(map[string]string),
	}
}

func (s *Store) GetIndex(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.indexes[name]
	if !ok {
		return nil, remote.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Store) PutIndex(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.indexes[name] = stored
	return nil
}

func (s *Store) GetPageContent(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.contents[id]
	if !ok {
		return "", remote.ErrNotFound
	}
	return content, nil
}

func (s *Store) PutPageContent(ctx context.Context, id string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contents[id] = content
	return nil
}

func (s *Store) DeletePageContent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contents, id)
	return nil
}

func (s *Store) ListPageContentIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.contents))
	for id := range s.contents {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexes = make(map[string][]byte)
	s.contents = make(map[string]string)
	return nil
}

// RemoveIndex deletes a stored index outright, handy for simulating an
// empty remote mid-test.
func (s *Store) RemoveIndex(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.indexes, name)
}
