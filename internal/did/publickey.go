package did

import (
	"encoding/base64"
	"encoding/pem"
	"strings"

	dErrors "praman/pkg/domain-errors"
)

const (
	// MaxPublicKeyLength bounds the canonical public key encoding.
	MaxPublicKeyLength = 4096
	// MaxDeviceIDLength bounds the device identifier.
	MaxDeviceIDLength = 512
)

// CanonicalPublicKey returns the encoding hashed into a DID.
//
// PEM input is reduced to the standard base64 of its DER body, so the same
// key in PEM and bare base64 derives the same DID. Any other input is taken
// as an opaque encoding and must be non-empty visible ASCII.
func CanonicalPublicKey(publicKey string) (string, error) {
	key := strings.TrimSpace(publicKey)
	if key == "" {
		return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key is empty")
	}

	if strings.HasPrefix(key, "-----BEGIN") {
		block, rest := pem.Decode([]byte(key))
		if block == nil || len(block.Bytes) == 0 {
			return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key PEM block is malformed")
		}
		if len(strings.TrimSpace(string(rest))) > 0 {
			return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key PEM has trailing data")
		}
		key = base64.StdEncoding.EncodeToString(block.Bytes)
	}

	if len(key) > MaxPublicKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key exceeds maximum length")
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key contains non-printable characters")
		}
	}
	return key, nil
}

// CanonicalPublicKeyBytes encodes raw key bytes (for example an SPKI DER
// blob) as standard base64.
func CanonicalPublicKeyBytes(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key is empty")
	}
	key := base64.StdEncoding.EncodeToString(publicKey)
	if len(key) > MaxPublicKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "public key exceeds maximum length")
	}
	return key, nil
}

func validateDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return dErrors.New(dErrors.CodeInvalidDeviceID, "device id is empty")
	}
	if len(deviceID) > MaxDeviceIDLength {
		return dErrors.New(dErrors.CodeInvalidDeviceID, "device id exceeds maximum length")
	}
	return nil
}
