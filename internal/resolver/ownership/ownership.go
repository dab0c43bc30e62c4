// Package ownership checks that a caller controls a registered DID.
//
// The caller presents a compact JWT signed with the DID's registered key. Its
// iss is the DID and its aud is the relying party the caller acts for, so a
// proof obtained by one relying party cannot be used to ask about another.
package ownership

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/golang-jwt/jwt/v5"

	"praman/internal/resolver/models"
	"praman/internal/vc/signer"
	dErrors "praman/pkg/domain-errors"
)

const (
	// MaxLifetime bounds exp - iat of an accepted proof.
	MaxLifetime = 5 * time.Minute

	clockSkew = 30 * time.Second
)

var errUnsupportedKey = errors.New("registered key type cannot sign ownership proofs")

// Verify checks token against the registered key of reg for audience at now.
// Every failure is reported as Unauthorized.
func Verify(reg models.Registration, token, audience string, now time.Time) error {
	if token == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "proof of did control is required")
	}
	alg, key, err := verificationKey(reg)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "registered key cannot sign ownership proofs")
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(reg.DID.String()),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "proof of did control is not valid")
	}
	if claims.IssuedAt == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "proof of did control must carry iat")
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxLifetime {
		return dErrors.New(dErrors.CodeUnauthorized, "proof of did control lives too long")
	}
	return nil
}

// verificationKey maps a registration to the JWS algorithm and the key type
// golang-jwt expects for it.
func verificationKey(reg models.Registration) (string, any, error) {
	switch reg.KeyType {
	case models.KeyTypeEd25519:
		if len(reg.PublicKey) != ed25519.PublicKeySize {
			return "", nil, errUnsupportedKey
		}
		return jwt.SigningMethodEdDSA.Alg(), ed25519.PublicKey(reg.PublicKey), nil
	case models.KeyTypeSecp256k1:
		pub, err := btcec.ParsePubKey(reg.PublicKey)
		if err != nil {
			return "", nil, err
		}
		return signer.ES256K.Alg(), pub, nil
	case models.KeyTypeP256:
		pub, err := x509.ParsePKIXPublicKey(reg.PublicKey)
		if err != nil {
			return "", nil, err
		}
		ec, ok := pub.(*ecdsa.PublicKey)
		if !ok || ec.Curve != elliptic.P256() {
			return "", nil, errUnsupportedKey
		}
		return jwt.SigningMethodES256.Alg(), ec, nil
	case models.KeyTypeRSA:
		pub, err := x509.ParsePKIXPublicKey(reg.PublicKey)
		if err != nil {
			return "", nil, err
		}
		rk, ok := pub.(*rsa.PublicKey)
		if !ok {
			return "", nil, errUnsupportedKey
		}
		return jwt.SigningMethodRS256.Alg(), rk, nil
	}
	return "", nil, errUnsupportedKey
}
