package store

import (
	"context"
	"sync"

	"genba/internal/sop/models"
	id "genba/pkg/domain"
	"genba/pkg/platform/sentinel"
)

// Reader loads procedures. Sessions only ever read SOPs; authoring happens
// in a separate system writing the same tables.
type Reader interface {
	GetByID(ctx context.Context, sopID id.SOPID) (*models.SOP, error)
}

// InMemorySOPStore holds procedures for tests and development.
type InMemorySOPStore struct {
	mu   sync.RWMutex
	sops map[id.SOPID]*models.SOP
}

func NewInMemorySOPStore() *InMemorySOPStore {
	return &InMemorySOPStore{sops: make(map[id.SOPID]*models.SOP)}
}

// Put seeds a procedure.
func (s *InMemorySOPStore) Put(sop *models.SOP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sops[sop.ID] = sop
}

func (s *InMemorySOPStore) GetByID(_ context.Context, sopID id.SOPID) (*models.SOP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sop, ok := s.sops[sopID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sop, nil
}
