package store

import (
	"context"
	"time"

	"praman/internal/did"
	"praman/internal/resolver/models"
)

// Store persists DID registrations.
//
// Implementations return sentinel.ErrAlreadyUsed when a DID is registered
// twice and sentinel.ErrNotFound for unknown DIDs. Deactivate keeps the first
// deactivation time when called again.
type Store interface {
	Save(ctx context.Context, reg models.Registration) error
	FindByDID(ctx context.Context, d did.DID) (models.Registration, error)
	Deactivate(ctx context.Context, d did.DID, at time.Time) (models.Registration, error)
}
