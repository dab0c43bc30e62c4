package did

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/bits"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "praman/pkg/domain-errors"
)

const samplePublicKey = "MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAE..."

type DeriverSuite struct {
	suite.Suite
	deriver *Deriver
}

func TestDeriverSuite(t *testing.T) {
	suite.Run(t, new(DeriverSuite))
}

func (s *DeriverSuite) SetupTest() {
	s.deriver = NewDeriver()
}

func (s *DeriverSuite) TestDeterministic() {
	first, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)

	second, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)

	s.Equal(first, second)
}

func (s *DeriverSuite) TestDeviceChangeProducesNewDID() {
	d, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)
	again, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)
	other, err := s.deriver.Derive(samplePublicKey, "192.168.1.101")
	s.Require().NoError(err)

	s.Equal(d, again)
	s.NotEqual(d, other)
}

func (s *DeriverSuite) TestOutputGrammar() {
	for i := 0; i < 100; i++ {
		d, err := s.deriver.Derive(fmt.Sprintf("publicKey_%d", i), fmt.Sprintf("device_%d", i))
		s.Require().NoError(err)

		s.Len(d.String(), 75)
		s.True(strings.HasPrefix(d.String(), "did:bharat:"))
		s.True(IsValid(d.String()))
		s.Equal(Method, d.Method())
		s.Len(d.Identifier(), 64)
	}
}

func (s *DeriverSuite) TestUniqueAcrossTenThousandSamples() {
	seen := make(map[DID]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		d, err := s.deriver.Derive(fmt.Sprintf("publicKey_%d", i), fmt.Sprintf("device_%d", i))
		s.Require().NoError(err)
		seen[d] = struct{}{}
	}
	s.Len(seen, 10000)
}

func (s *DeriverSuite) TestAvalanche() {
	base, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)

	totalBits := 0
	mutations := 0
	for i := 0; i < len(samplePublicKey); i++ {
		mutated := []byte(samplePublicKey)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		d, err := s.deriver.Derive(string(mutated), "192.168.1.100")
		s.Require().NoError(err)
		s.NotEqual(base, d, "mutation at byte %d", i)

		totalBits += hammingDistance(s.T(), base, d)
		mutations++
	}

	// A good 256-bit digest flips about half of its bits per input change.
	avg := float64(totalBits) / float64(mutations)
	s.InDelta(128, avg, 24)
}

func (s *DeriverSuite) TestFieldBoundariesAreUnambiguous() {
	a, err := s.deriver.Derive("keyA", "Bdevice")
	s.Require().NoError(err)
	b, err := s.deriver.Derive("keyAB", "device")
	s.Require().NoError(err)
	s.NotEqual(a, b)
}

func (s *DeriverSuite) TestPEMAndBase64AreEquivalent() {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	s.Require().NoError(err)

	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	b64Key := base64.StdEncoding.EncodeToString(der)

	fromPEM, err := s.deriver.Derive(pemKey, "device-1")
	s.Require().NoError(err)
	fromB64, err := s.deriver.Derive(b64Key, "device-1")
	s.Require().NoError(err)
	fromBytes, err := s.deriver.DeriveBytes(der, "device-1")
	s.Require().NoError(err)

	s.Equal(fromB64, fromPEM)
	s.Equal(fromB64, fromBytes)
}

func (s *DeriverSuite) TestSurroundingWhitespaceIsIgnored() {
	a, err := s.deriver.Derive("  publicKey_1\n", "device")
	s.Require().NoError(err)
	b, err := s.deriver.Derive("publicKey_1", "device")
	s.Require().NoError(err)
	s.Equal(a, b)
}

func (s *DeriverSuite) TestSaltAndHashChangeOutput() {
	base, err := s.deriver.Derive(samplePublicKey, "device")
	s.Require().NoError(err)

	salted, err := NewDeriver(WithSalt("other-salt")).Derive(samplePublicKey, "device")
	s.Require().NoError(err)
	sha3DID, err := NewDeriver(WithHash(HashSHA3)).Derive(samplePublicKey, "device")
	s.Require().NoError(err)

	s.NotEqual(base, salted)
	s.NotEqual(base, sha3DID)
	s.True(IsValid(sha3DID.String()))
	s.Equal(HashSHA3, NewDeriver(WithHash(HashSHA3)).Algorithm())
}

func (s *DeriverSuite) TestInvalidKeyFormat() {
	cases := map[string]string{
		"empty":             "",
		"whitespace":        "   \t\n",
		"embedded space":    "MFkw EwYH",
		"control character": "MFkw\x00EwYH",
		"non-ascii":         "MFkwé",
		"oversized":         strings.Repeat("A", MaxPublicKeyLength+1),
		"broken pem":        "-----BEGIN PUBLIC KEY-----\nnot base64\n",
	}
	for name, key := range cases {
		s.Run(name, func() {
			_, err := s.deriver.Derive(key, "device")
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidKeyFormat), "got %v", err)
		})
	}

	_, err := s.deriver.DeriveBytes(nil, "device")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidKeyFormat))
}

func (s *DeriverSuite) TestInvalidDeviceID() {
	for _, device := range []string{"", "   ", strings.Repeat("d", MaxDeviceIDLength+1)} {
		_, err := s.deriver.Derive(samplePublicKey, device)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidDeviceID), "device %q: %v", device, err)
	}
}

func (s *DeriverSuite) TestKeyIsCheckedBeforeDevice() {
	_, err := s.deriver.Derive("", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidKeyFormat))
}

func (s *DeriverSuite) TestConcurrentDerivationsAgree() {
	expected, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	results := make([]DID, 64)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _ = s.deriver.Derive(samplePublicKey, "192.168.1.100")
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		s.Equal(expected, d)
	}
}

func (s *DeriverSuite) TestPairwise() {
	master, err := s.deriver.Derive(samplePublicKey, "192.168.1.100")
	s.Require().NoError(err)

	hospital, err := s.deriver.Pairwise(master, "aiims.example.in")
	s.Require().NoError(err)
	hospitalAgain, err := s.deriver.Pairwise(master, "AIIMS.example.in")
	s.Require().NoError(err)
	bank, err := s.deriver.Pairwise(master, "sbi.example.in")
	s.Require().NoError(err)

	s.Equal(hospital, hospitalAgain)
	s.NotEqual(hospital, bank)
	s.NotEqual(master, hospital)
	s.True(IsValid(hospital.String()))
}

func (s *DeriverSuite) TestPairwiseErrors() {
	_, err := s.deriver.Pairwise(DID("did:bharat:xyz"), "rp")
	s.True(dErrors.HasCode(err, dErrors.CodeMalformedDID))

	master, err := s.deriver.Derive(samplePublicKey, "device")
	s.Require().NoError(err)
	_, err = s.deriver.Pairwise(master, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *DeriverSuite) TestParseHashAlgorithm() {
	alg, err := ParseHashAlgorithm("SHA3-256")
	s.Require().NoError(err)
	s.Equal(HashSHA3, alg)

	alg, err = ParseHashAlgorithm("")
	s.Require().NoError(err)
	s.Equal(HashSHA256, alg)

	_, err = ParseHashAlgorithm("md5")
	s.Error(err)
}

func hammingDistance(t *testing.T, a, b DID) int {
	t.Helper()
	ra, err := hex.DecodeString(a.Identifier())
	if err != nil {
		t.Fatal(err)
	}
	rb, err := hex.DecodeString(b.Identifier())
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for i := range ra {
		n += bits.OnesCount8(ra[i] ^ rb[i])
	}
	return n
}

func BenchmarkDerive(b *testing.B) {
	d := NewDeriver()
	for i := 0; i < b.N; i++ {
		if _, err := d.Derive(samplePublicKey, fmt.Sprintf("device_%d", i)); err != nil {
			b.Fatal(err)
		}
	}
}
