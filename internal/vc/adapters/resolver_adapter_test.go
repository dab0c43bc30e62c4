package adapters

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	resolvermodels "praman/internal/resolver/models"
	resolverservice "praman/internal/resolver/service"
	resolverstore "praman/internal/resolver/store"
	"praman/internal/vc/signer"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/testutil"
)

func newResolver(t *testing.T, regs ...resolvermodels.Registration) *resolverservice.Service {
	t.Helper()
	st := resolverstore.NewInMemoryStore()
	for _, reg := range regs {
		require.NoError(t, st.Save(context.Background(), reg))
	}
	return resolverservice.NewService(st)
}

func TestResolveKey_SupportedTypes(t *testing.T) {
	edPub, _ := testutil.Ed25519Key(5)
	secp, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	svc := newResolver(t,
		testutil.NewRegistrationBuilder().WithDID(testutil.TestDIDs.Subject).WithKey(resolvermodels.KeyTypeEd25519, edPub).Build(),
		testutil.NewRegistrationBuilder().WithDID(testutil.TestDIDs.Issuer).WithKey(resolvermodels.KeyTypeSecp256k1, secp.PubKey().SerializeCompressed()).Build(),
	)
	adapter := NewResolverKeyResolver(svc)

	key, err := adapter.ResolveKey(context.Background(), testutil.TestDIDs.Subject)
	require.NoError(t, err)
	assert.Equal(t, signer.KeyTypeEd25519, key.Type)
	assert.Equal(t, []byte(edPub), key.Bytes)

	key, err = adapter.ResolveKey(context.Background(), testutil.TestDIDs.Issuer)
	require.NoError(t, err)
	assert.Equal(t, signer.KeyTypeSecp256k1, key.Type)
	assert.NoError(t, key.Validate())
}

func TestResolveKey_Errors(t *testing.T) {
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&p256.PublicKey)
	require.NoError(t, err)

	svc := newResolver(t,
		testutil.NewRegistrationBuilder().WithDID(testutil.TestDIDs.Subject).WithKey(resolvermodels.KeyTypeP256, der).Build(),
		testutil.NewRegistrationBuilder().WithDID(testutil.TestDIDs.Issuer).Deactivated(testutil.FixedTime).Build(),
	)
	adapter := NewResolverKeyResolver(svc)
	ctx := context.Background()

	_, err = adapter.ResolveKey(ctx, testutil.TestDIDs.Subject)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = adapter.ResolveKey(ctx, testutil.TestDIDs.Issuer)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeGone))

	_, err = adapter.ResolveKey(ctx, testutil.TestDIDs.Other)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
