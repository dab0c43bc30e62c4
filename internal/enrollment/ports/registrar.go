package ports

import (
	"context"

	resolvermodels "praman/internal/resolver/models"
)

// Registrar publishes a derived DID and its public key to the resolver.
//
// Implementations return a Conflict domain error when the DID is already
// registered.
type Registrar interface {
	Register(ctx context.Context, cmd resolvermodels.RegisterCommand) (*resolvermodels.Document, error)
}
