package testutil

import (
	"crypto/ed25519"
	"strings"
	"time"

	"praman/internal/did"
	resolvermodels "praman/internal/resolver/models"
)

// FixedTime is the reference instant used by fixtures.
var FixedTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

// TestDIDs are syntactically valid DIDs with recognizable identifiers.
var TestDIDs = struct {
	Subject did.DID
	Issuer  did.DID
	Other   did.DID
}{
	Subject: did.DID("did:bharat:" + strings.Repeat("a1", 32)),
	Issuer:  did.DID("did:bharat:" + strings.Repeat("b2", 32)),
	Other:   did.DID("did:bharat:" + strings.Repeat("c3", 32)),
}

// Ed25519Key returns a deterministic key pair whose seed is fill repeated.
func Ed25519Key(fill byte) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv
}

// RegistrationBuilder builds resolver registrations for tests.
type RegistrationBuilder struct {
	reg resolvermodels.Registration
}

// NewRegistrationBuilder starts from an active Ed25519 registration of
// TestDIDs.Subject.
func NewRegistrationBuilder() *RegistrationBuilder {
	pub, _ := Ed25519Key(1)
	return &RegistrationBuilder{
		reg: resolvermodels.Registration{
			DID:       TestDIDs.Subject,
			KeyType:   resolvermodels.KeyTypeEd25519,
			PublicKey: pub,
			CreatedAt: FixedTime,
			UpdatedAt: FixedTime,
		},
	}
}

func (b *RegistrationBuilder) WithDID(d did.DID) *RegistrationBuilder {
	b.reg.DID = d
	return b
}

func (b *RegistrationBuilder) WithKey(kt resolvermodels.KeyType, key []byte) *RegistrationBuilder {
	b.reg.KeyType = kt
	b.reg.PublicKey = key
	return b
}

func (b *RegistrationBuilder) WithService(typ, endpoint string) *RegistrationBuilder {
	b.reg.Services = append(b.reg.Services, resolvermodels.Service{
		ID:              b.reg.DID.String() + "#" + strings.ToLower(typ),
		Type:            typ,
		ServiceEndpoint: endpoint,
	})
	return b
}

func (b *RegistrationBuilder) CreatedAt(t time.Time) *RegistrationBuilder {
	b.reg.CreatedAt = t
	b.reg.UpdatedAt = t
	return b
}

func (b *RegistrationBuilder) Deactivated(at time.Time) *RegistrationBuilder {
	b.reg.DeactivatedAt = &at
	b.reg.UpdatedAt = at
	return b
}

func (b *RegistrationBuilder) Build() resolvermodels.Registration {
	return b.reg
}
