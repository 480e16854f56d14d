// Package store persists protected records. Stores only ever see ciphertext.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"oncocentre/internal/records/models"
	id "oncocentre/pkg/domain"
	"oncocentre/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map keyed by external id.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.ProtectedRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.ProtectedRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, rec *models.ProtectedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.records[rec.ExternalID]; taken {
		return fmt.Errorf("record %s: %w", rec.ExternalID, sentinel.ErrConflict)
	}
	for _, r := range s.records {
		if r.ID == rec.ID {
			return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrConflict)
		}
	}
	c := *rec
	s.records[rec.ExternalID] = &c
	return nil
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*models.ProtectedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[externalID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", externalID, sentinel.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (s *InMemoryStore) ListExternalIDs(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for externalID := range s.records {
		if strings.HasPrefix(externalID, prefix) {
			out = append(out, externalID)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByIPPIndex(_ context.Context, creator id.IdentityID, index string) ([]*models.ProtectedRecord, error) {
	return s.filter(func(r *models.ProtectedRecord) bool {
		return r.CreatedBy == creator && r.IPPIndex == index
	}), nil
}

// List returns every record, newest first.
func (s *InMemoryStore) List(_ context.Context) ([]*models.ProtectedRecord, error) {
	return s.filter(func(*models.ProtectedRecord) bool { return true }), nil
}

// ListByCreator returns creator's records, newest first.
func (s *InMemoryStore) ListByCreator(_ context.Context, creator id.IdentityID) ([]*models.ProtectedRecord, error) {
	return s.filter(func(r *models.ProtectedRecord) bool { return r.CreatedBy == creator }), nil
}

func (s *InMemoryStore) CountByCreator(ctx context.Context, creator id.IdentityID) (int, error) {
	recs, _ := s.ListByCreator(ctx, creator)
	return len(recs), nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *InMemoryStore) filter(keep func(*models.ProtectedRecord) bool) []*models.ProtectedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProtectedRecord, 0)
	for _, r := range s.records {
		if keep(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ExternalID > out[j].ExternalID
	})
	return out
}
