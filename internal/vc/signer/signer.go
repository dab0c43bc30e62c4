// Package signer produces and checks the detached JWS proofs embedded in
// credentials. EdDSA goes through golang-jwt's Ed25519 method; ES256K uses a
// secp256k1 method registered with golang-jwt.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SeedSize is the length of an issuer key seed in bytes.
const SeedSize = 32

// Algorithm names as they appear in the JWS header.
const (
	AlgEdDSA  = "EdDSA"
	AlgES256K = "ES256K"
)

// KeyType is a DID Document verification method type.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519VerificationKey2020"
	KeyTypeSecp256k1 KeyType = "EcdsaSecp256k1VerificationKey2019"
)

// Proof types written into credential proofs.
const (
	ProofTypeEd25519   = "Ed25519Signature2020"
	ProofTypeSecp256k1 = "EcdsaSecp256k1Signature2019"
)

var (
	ErrMalformedJWS      = errors.New("malformed jws")
	ErrAlgorithmMismatch = errors.New("jws algorithm does not match key")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrUnsupportedKey    = errors.New("unsupported key type")
)

// PublicKey is verification key material as held in a DID Document.
// Ed25519 keys are 32 raw bytes; secp256k1 keys are 33-byte compressed points.
type PublicKey struct {
	Type  KeyType
	Bytes []byte
}

// Algorithm returns the JWS algorithm that verifies with this key.
func (k PublicKey) Algorithm() (string, error) {
	switch k.Type {
	case KeyTypeEd25519:
		return AlgEdDSA, nil
	case KeyTypeSecp256k1:
		return AlgES256K, nil
	default:
		return "", ErrUnsupportedKey
	}
}

func (k PublicKey) verificationKey() (any, error) {
	switch k.Type {
	case KeyTypeEd25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: ed25519 key must be %d bytes", ErrUnsupportedKey, ed25519.PublicKeySize)
		}
		return ed25519.PublicKey(k.Bytes), nil
	case KeyTypeSecp256k1:
		pub, err := btcec.ParsePubKey(k.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		return pub, nil
	default:
		return nil, ErrUnsupportedKey
	}
}

// Validate checks that the key bytes parse for the declared type.
func (k PublicKey) Validate() error {
	_, err := k.verificationKey()
	return err
}

// Signer signs canonical payloads with a single issuer key. It holds only
// immutable key material and is safe for concurrent use.
type Signer struct {
	method    jwt.SigningMethod
	key       any
	public    PublicKey
	proofType string
}

// New builds a signer for alg from a 32-byte seed.
func New(alg string, seed []byte) (*Signer, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	switch alg {
	case AlgEdDSA:
		priv := ed25519.NewKeyFromSeed(seed)
		return &Signer{
			method:    jwt.SigningMethodEdDSA,
			key:       priv,
			public:    PublicKey{Type: KeyTypeEd25519, Bytes: []byte(priv.Public().(ed25519.PublicKey))},
			proofType: ProofTypeEd25519,
		}, nil
	case AlgES256K:
		priv, pub := btcec.PrivKeyFromBytes(seed)
		if priv.Key.IsZero() {
			return nil, errors.New("secp256k1 seed reduces to zero")
		}
		return &Signer{
			method:    ES256K,
			key:       priv,
			public:    PublicKey{Type: KeyTypeSecp256k1, Bytes: pub.SerializeCompressed()},
			proofType: ProofTypeSecp256k1,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// GenerateSeed returns a fresh random seed.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

func (s *Signer) Algorithm() string    { return s.method.Alg() }
func (s *Signer) ProofType() string    { return s.proofType }
func (s *Signer) PublicKey() PublicKey { return s.public }

// header field order is fixed so the encoded header is stable.
type header struct {
	Alg  string   `json:"alg"`
	B64  bool     `json:"b64"`
	Crit []string `json:"crit"`
	Kid  string   `json:"kid,omitempty"`
}

// SignDetached returns a compact JWS with an empty payload segment
// (RFC 7797, b64=false) over payload.
func (s *Signer) SignDetached(kid string, payload []byte) (string, error) {
	h, err := json.Marshal(header{Alg: s.method.Alg(), B64: false, Crit: []string{"b64"}, Kid: kid})
	if err != nil {
		return "", fmt.Errorf("encode jws header: %w", err)
	}
	encodedHeader := base64.RawURLEncoding.EncodeToString(h)

	sig, err := s.method.Sign(signingInput(encodedHeader, payload), s.key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return encodedHeader + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyDetached checks a detached JWS over payload with pub.
func VerifyDetached(jws string, payload []byte, pub PublicKey) error {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 || parts[1] != "" {
		return ErrMalformedJWS
	}
	rawHeader, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrMalformedJWS
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return ErrMalformedJWS
	}
	if h.B64 || len(h.Crit) != 1 || h.Crit[0] != "b64" {
		return ErrMalformedJWS
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ErrMalformedJWS
	}

	expected, err := pub.Algorithm()
	if err != nil {
		return err
	}
	if h.Alg != expected {
		return ErrAlgorithmMismatch
	}
	method := jwt.GetSigningMethod(h.Alg)
	if method == nil {
		return ErrAlgorithmMismatch
	}
	key, err := pub.verificationKey()
	if err != nil {
		return err
	}
	if err := method.Verify(signingInput(parts[0], payload), sig, key); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

func signingInput(encodedHeader string, payload []byte) string {
	return encodedHeader + "." + string(payload)
}
