package lockout

import (
	"context"
	"fmt"
	"sync"

	"oncocentre/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Get(_ context.Context, username string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[username]
	if !ok {
		return nil, fmt.Errorf("lockout %q: %w", username, sentinel.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *record
	s.records[record.Username] = &c
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[username]
	delete(s.records, username)
	return ok, nil
}
