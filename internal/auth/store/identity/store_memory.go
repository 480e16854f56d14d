// Package identity persists authenticated principals.
package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"oncocentre/internal/auth/models"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed Store used by tests and ephemeral runs.
// Returned identities are copies; callers mutate and Update explicitly.
type InMemoryStore struct {
	mu         sync.RWMutex
	byID       map[id.IdentityID]*models.Identity
	byUsername map[string]id.IdentityID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:       make(map[id.IdentityID]*models.Identity),
		byUsername: make(map[string]id.IdentityID),
	}
}

func (s *InMemoryStore) FindByUsername(_ context.Context, username string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identityID, ok := s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("identity %q: %w", username, sentinel.ErrNotFound)
	}
	return clone(s.byID[identityID]), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[identityID]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", identityID, sentinel.ErrNotFound)
	}
	return clone(i), nil
}

func (s *InMemoryStore) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[identity.Username]; taken {
		return fmt.Errorf("identity %q: %w", identity.Username, sentinel.ErrConflict)
	}
	if _, taken := s.byID[identity.ID]; taken {
		return fmt.Errorf("identity %s: %w", identity.ID, sentinel.ErrConflict)
	}
	s.byID[identity.ID] = clone(identity)
	s.byUsername[identity.Username] = identity.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[identity.ID]
	if !ok {
		return fmt.Errorf("identity %s: %w", identity.ID, sentinel.ErrNotFound)
	}
	if existing.Username != identity.Username {
		if _, taken := s.byUsername[identity.Username]; taken {
			return fmt.Errorf("identity %q: %w", identity.Username, sentinel.ErrConflict)
		}
		delete(s.byUsername, existing.Username)
		s.byUsername[identity.Username] = identity.ID
	}
	s.byID[identity.ID] = clone(identity)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, identityID id.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[identityID]
	if !ok {
		return fmt.Errorf("identity %s: %w", identityID, sentinel.ErrNotFound)
	}
	delete(s.byUsername, existing.Username)
	delete(s.byID, identityID)
	return nil
}

// List returns all identities ordered by username.
func (s *InMemoryStore) List(_ context.Context) ([]*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Identity, 0, len(s.byID))
	for _, i := range s.byID {
		out = append(out, clone(i))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Username < out[b].Username })
	return out, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.Stats
	for _, i := range s.byID {
		st.Total++
		if i.Active {
			st.Active++
		}
		if i.IsAdministrator {
			st.Administrators++
		}
		if i.IsPrincipalInvestigator {
			st.PrincipalInvestigators++
		}
		if i.IsDirectory() {
			st.Directory++
		}
	}
	return st, nil
}

func clone(i *models.Identity) *models.Identity {
	c := *i
	if i.LastSyncAt != nil {
		t := *i.LastSyncAt
		c.LastSyncAt = &t
	}
	return &c
}
