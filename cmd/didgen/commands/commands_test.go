package commands

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praman/internal/did"
	"praman/internal/vc/signer"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestDeriveCmd(t *testing.T) {
	t.Setenv(saltEnvKey, "")

	t.Run("matches the library derivation", func(t *testing.T) {
		out, err := run(t, GetDeriveCmd(), "--public-key", "MCowBQYDK2VwAyEA", "--device-id", "pixel-8")
		require.NoError(t, err)

		want, err := did.NewDeriver().Derive("MCowBQYDK2VwAyEA", "pixel-8")
		require.NoError(t, err)
		assert.Equal(t, want.String(), out)
	})

	t.Run("salt changes the DID", func(t *testing.T) {
		plain, err := run(t, GetDeriveCmd(), "--public-key", "k", "--device-id", "d")
		require.NoError(t, err)
		salted, err := run(t, GetDeriveCmd(), "--public-key", "k", "--device-id", "d", "--salt", "other")
		require.NoError(t, err)
		assert.NotEqual(t, plain, salted)
		assert.True(t, did.IsValid(salted))
	})

	t.Run("salt from environment", func(t *testing.T) {
		t.Setenv(saltEnvKey, "from-env")
		fromEnv, err := run(t, GetDeriveCmd(), "--public-key", "k", "--device-id", "d")
		require.NoError(t, err)
		fromFlag, err := run(t, GetDeriveCmd(), "--public-key", "k", "--device-id", "d", "--salt", "from-env")
		require.NoError(t, err)
		assert.Equal(t, fromFlag, fromEnv)
	})

	t.Run("missing device id", func(t *testing.T) {
		_, err := run(t, GetDeriveCmd(), "--public-key", "k")
		require.ErrorContains(t, err, "--device-id is required")
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := run(t, GetDeriveCmd(), "--public-key", "k", "--device-id", "d", "--hash", "md5")
		require.Error(t, err)
	})
}

func TestPairwiseCmd(t *testing.T) {
	t.Setenv(saltEnvKey, "")
	master, err := did.NewDeriver().Derive("k", "d")
	require.NoError(t, err)

	a, err := run(t, GetPairwiseCmd(), "--did", master.String(), "--relying-party", "bank.example")
	require.NoError(t, err)
	b, err := run(t, GetPairwiseCmd(), "--did", master.String(), "--relying-party", "shop.example")
	require.NoError(t, err)

	assert.True(t, did.IsValid(a))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, master.String(), a)

	_, err = run(t, GetPairwiseCmd(), "--did", "did:bharat:nope", "--relying-party", "bank.example")
	require.Error(t, err)
}

func TestKeygenCmd(t *testing.T) {
	t.Setenv(saltEnvKey, "")
	for _, alg := range []string{"eddsa", "es256k"} {
		t.Run(alg, func(t *testing.T) {
			out, err := run(t, GetKeygenCmd(), "--alg", alg)
			require.NoError(t, err)

			var got KeygenOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))

			seed, err := hex.DecodeString(got.Seed)
			require.NoError(t, err)
			require.Len(t, seed, signer.SeedSize)

			sg, err := signer.New(got.Algorithm, seed)
			require.NoError(t, err)
			want, err := did.NewDeriver().DeriveBytes(sg.PublicKey().Bytes, did.IssuerDeviceID)
			require.NoError(t, err)
			assert.Equal(t, want.String(), got.IssuerDID)
			assert.Equal(t, string(sg.PublicKey().Type), got.KeyType)
		})
	}

	_, err := run(t, GetKeygenCmd(), "--alg", "rsa")
	require.Error(t, err)
}

func TestBenchCmd(t *testing.T) {
	out, err := run(t, GetBenchCmd(), "--count", "16", "--workers", "4")
	require.NoError(t, err)

	var results []PhaseResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	for i, phase := range []string{"derive", "issue", "verify"} {
		assert.Equal(t, phase, results[i].Phase)
		assert.Equal(t, 16, results[i].Operations)
	}

	_, err = run(t, GetBenchCmd(), "--count", "0")
	require.Error(t, err)
}
