package ports

import (
	"context"

	"praman/internal/did"
	"praman/internal/vc/signer"
)

// KeyResolver resolves an issuer DID to its assertion key.
//
// Implementations return domain errors: NotFound for unknown DIDs and Gone
// for deactivated ones. Verification maps both to IssuerUnknown.
type KeyResolver interface {
	ResolveKey(ctx context.Context, issuer did.DID) (signer.PublicKey, error)
}
