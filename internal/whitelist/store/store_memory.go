// Package store persists whitelist entries.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"oncocentre/internal/whitelist/models"
	"oncocentre/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in a map keyed by username.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.Entry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*models.Entry)}
}

func (s *InMemoryStore) FindByUsername(_ context.Context, username string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[username]
	if !ok {
		return nil, fmt.Errorf("whitelist entry %q: %w", username, sentinel.ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (s *InMemoryStore) Create(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.Username]; ok {
		return fmt.Errorf("whitelist entry %q: %w", entry.Username, sentinel.ErrConflict)
	}
	c := *entry
	s.entries[entry.Username] = &c
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[entry.Username]
	if !ok || existing.ID != entry.ID {
		return fmt.Errorf("whitelist entry %q: %w", entry.Username, sentinel.ErrNotFound)
	}
	c := *entry
	c.CreatedAt = existing.CreatedAt
	s.entries[entry.Username] = &c
	return nil
}

// List returns every entry, active or not, ordered by username.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Count returns the number of entries ever stored, inactive ones included.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
