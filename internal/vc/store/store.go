package store

import (
	"context"

	"praman/internal/vc/models"
)

// Store persists revocation entries. Issued credentials themselves are never
// stored. Implementations return sentinel.ErrAlreadyUsed when an id is
// already revoked and sentinel.ErrNotFound when it is not.
type Store interface {
	Save(ctx context.Context, revocation models.Revocation) error
	FindByID(ctx context.Context, id models.CredentialID) (models.Revocation, error)
}
