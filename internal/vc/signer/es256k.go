package signer

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodES256K implements jwt.SigningMethod for ECDSA over secp256k1
// with SHA-256. Signatures are the 64-byte R||S concatenation.
type SigningMethodES256K struct{}

// ES256K is the registered ES256K signing method.
var ES256K = &SigningMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(ES256K.Alg(), func() jwt.SigningMethod { return ES256K })
}

func (m *SigningMethodES256K) Alg() string { return "ES256K" }

// Sign expects a *btcec.PrivateKey.
func (m *SigningMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*btcec.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	hash := sha256.Sum256([]byte(signingString))
	compact := btcecdsa.SignCompact(priv, hash[:], true)
	// Drop the leading recovery byte.
	return compact[1:], nil
}

// Verify expects a *btcec.PublicKey.
func (m *SigningMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*btcec.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return jwt.ErrSignatureInvalid
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return jwt.ErrSignatureInvalid
	}
	if r.IsZero() || s.IsZero() {
		return jwt.ErrSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !btcecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
