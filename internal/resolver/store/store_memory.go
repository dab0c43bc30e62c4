package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"praman/internal/did"
	"praman/internal/resolver/models"
	"praman/pkg/platform/sentinel"
)

// InMemoryStore keeps registrations in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu   sync.RWMutex
	regs map[did.DID]models.Registration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{regs: make(map[did.DID]models.Registration)}
}

func (s *InMemoryStore) Save(_ context.Context, reg models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[reg.DID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.regs[reg.DID] = clone(reg)
	return nil
}

func (s *InMemoryStore) FindByDID(_ context.Context, d did.DID) (models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[d]
	if !ok {
		return models.Registration{}, sentinel.ErrNotFound
	}
	return clone(reg), nil
}

func (s *InMemoryStore) Deactivate(_ context.Context, d did.DID, at time.Time) (models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[d]
	if !ok {
		return models.Registration{}, sentinel.ErrNotFound
	}
	if reg.DeactivatedAt == nil {
		at = at.UTC()
		reg.DeactivatedAt = &at
		reg.UpdatedAt = at
		s.regs[d] = reg
	}
	return clone(reg), nil
}

// clone detaches the stored value from caller-owned slices.
func clone(reg models.Registration) models.Registration {
	reg.PublicKey = slices.Clone(reg.PublicKey)
	reg.Services = slices.Clone(reg.Services)
	if reg.DeactivatedAt != nil {
		t := *reg.DeactivatedAt
		reg.DeactivatedAt = &t
	}
	return reg
}
