package service

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"strings"

	"praman/internal/did"
	"praman/internal/enrollment/models"
	resolvermodels "praman/internal/resolver/models"
	dErrors "praman/pkg/domain-errors"
)

// decodeBase64URL accepts padded and unpadded base64url, which browsers and
// client libraries emit interchangeably.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func checkClientData(encoded, challenge, origin string) error {
	raw, err := decodeBase64URL(encoded)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "clientDataJSON is not base64url")
	}
	var cd models.ClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "clientDataJSON is not valid JSON")
	}
	if cd.Type != models.ClientDataTypeCreate {
		return dErrors.New(dErrors.CodeInvalidInput, "clientDataJSON type must be webauthn.create")
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimRight(cd.Challenge, "=")), []byte(challenge)) != 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "challenge mismatch")
	}
	if origin != "" && cd.Origin != origin {
		return dErrors.New(dErrors.CodeInvalidInput, "origin mismatch")
	}
	return nil
}

// credentialKey is an authenticator public key in the two forms enrollment
// needs: the SPKI bytes the DID is derived from and the encoding the
// resolver stores for its key type.
type credentialKey struct {
	spki    []byte
	keyType resolvermodels.KeyType
	stored  []byte
}

func (k credentialKey) registerCommand(subject did.DID) resolvermodels.RegisterCommand {
	return resolvermodels.RegisterCommand{
		DID:       subject.String(),
		PublicKey: k.stored,
		KeyType:   string(k.keyType),
	}
}

func parseCredentialKey(encoded string) (credentialKey, error) {
	der, err := decodeBase64URL(encoded)
	if err != nil || len(der) == 0 {
		return credentialKey{}, dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKey is not base64url")
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return credentialKey{}, dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKey is not a SubjectPublicKeyInfo")
	}
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return credentialKey{}, dErrors.New(dErrors.CodeInvalidKeyFormat, "unsupported elliptic curve")
		}
		return credentialKey{spki: der, keyType: resolvermodels.KeyTypeP256, stored: der}, nil
	case ed25519.PublicKey:
		return credentialKey{spki: der, keyType: resolvermodels.KeyTypeEd25519, stored: []byte(k)}, nil
	case *rsa.PublicKey:
		return credentialKey{spki: der, keyType: resolvermodels.KeyTypeRSA, stored: der}, nil
	default:
		return credentialKey{}, dErrors.New(dErrors.CodeInvalidKeyFormat, "unsupported public key algorithm")
	}
}
