package store

import (
	"context"
	"sync"

	"praman/internal/vc/models"
	"praman/pkg/platform/sentinel"
)

// InMemoryStore is an in-memory implementation of Store for tests or local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu          sync.RWMutex
	revocations map[models.CredentialID]models.Revocation
}

// NewInMemoryStore constructs an empty in-memory revocation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{revocations: make(map[models.CredentialID]models.Revocation)}
}

// Save records a revocation. The first writer wins.
func (s *InMemoryStore) Save(_ context.Context, revocation models.Revocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revocations[revocation.CredentialID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.revocations[revocation.CredentialID] = revocation
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id models.CredentialID) (models.Revocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.revocations[id]; ok {
		return r, nil
	}
	return models.Revocation{}, sentinel.ErrNotFound
}
