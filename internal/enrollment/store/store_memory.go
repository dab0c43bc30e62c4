package store

import (
	"context"
	"sync"

	"praman/internal/enrollment/models"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
)

// InMemoryStore keeps sessions in process memory. Expired sessions are
// dropped when the same user starts over or verifies.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

func (s *InMemoryStore) Create(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.UserID]; ok && !existing.IsExpiredAt(requestcontext.Now(ctx)) {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[session.UserID] = session
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, userID string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return models.Session{}, sentinel.ErrNotFound
	}
	return session, nil
}

func (s *InMemoryStore) Consume(_ context.Context, userID, challenge string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok || session.Challenge != challenge {
		return models.Session{}, sentinel.ErrNotFound
	}
	delete(s.sessions, userID)
	return session, nil
}
