package adapters

import (
	"context"

	"praman/internal/did"
	resolvermodels "praman/internal/resolver/models"
	"praman/internal/vc/ports"
	"praman/internal/vc/signer"
	dErrors "praman/pkg/domain-errors"
)

// registrationProvider is the part of the resolver service the adapter needs.
// Defined locally so the credential module does not depend on the resolver
// service package.
type registrationProvider interface {
	Registration(ctx context.Context, d did.DID) (resolvermodels.Registration, error)
}

// ResolverKeyResolver adapts the DID resolver to ports.KeyResolver.
type ResolverKeyResolver struct {
	resolver registrationProvider
}

func NewResolverKeyResolver(resolver registrationProvider) *ResolverKeyResolver {
	return &ResolverKeyResolver{resolver: resolver}
}

// ResolveKey returns the issuer's assertion key. Resolver errors pass through
// with their codes; a key type the signer cannot verify with is reported as
// NotFound since the DID has no usable credential key.
func (a *ResolverKeyResolver) ResolveKey(ctx context.Context, issuer did.DID) (signer.PublicKey, error) {
	reg, err := a.resolver.Registration(ctx, issuer)
	if err != nil {
		return signer.PublicKey{}, err
	}

	var keyType signer.KeyType
	switch reg.KeyType {
	case resolvermodels.KeyTypeEd25519:
		keyType = signer.KeyTypeEd25519
	case resolvermodels.KeyTypeSecp256k1:
		keyType = signer.KeyTypeSecp256k1
	default:
		return signer.PublicKey{}, dErrors.New(dErrors.CodeNotFound, "issuer has no credential signing key")
	}
	return signer.PublicKey{Type: keyType, Bytes: reg.PublicKey}, nil
}

var _ ports.KeyResolver = (*ResolverKeyResolver)(nil)
