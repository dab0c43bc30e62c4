package did

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "praman/pkg/domain-errors"
)

// DefaultSalt is the derivation salt used when none is configured.
const DefaultSalt = "bharat-id-salt-2025"

// IssuerDeviceID is the device identifier the credential issuer derives its
// own DID under.
const IssuerDeviceID = "praman-issuer"

// HashAlgorithm selects the digest used for derivation.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA3   HashAlgorithm = "sha3-256"
)

// ParseHashAlgorithm maps a config value to a HashAlgorithm.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(strings.TrimSpace(s))) {
	case HashSHA256, "":
		return HashSHA256, nil
	case HashSHA3:
		return HashSHA3, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

func (a HashAlgorithm) newHash() hash.Hash {
	if a == HashSHA3 {
		return sha3.New256()
	}
	return sha256.New()
}

// Domain tags keep master and pairwise digests from colliding even when
// their field values coincide.
const (
	tagMaster   = "bharat/did/v1"
	tagPairwise = "bharat/pairwise/v1"
)

// Deriver computes DIDs. It holds only immutable configuration and is safe
// for concurrent use.
type Deriver struct {
	salt []byte
	alg  HashAlgorithm
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithSalt overrides DefaultSalt. An empty salt is ignored.
func WithSalt(salt string) Option {
	return func(d *Deriver) {
		if salt != "" {
			d.salt = []byte(salt)
		}
	}
}

// WithHash selects the digest algorithm.
func WithHash(alg HashAlgorithm) Option {
	return func(d *Deriver) {
		if alg != "" {
			d.alg = alg
		}
	}
}

// NewDeriver creates a Deriver with SHA-256 and DefaultSalt unless overridden.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		salt: []byte(DefaultSalt),
		alg:  HashSHA256,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Algorithm returns the configured digest algorithm.
func (d *Deriver) Algorithm() HashAlgorithm { return d.alg }

// Derive maps a public key encoding and device identifier to a DID.
// Identical inputs always give the identical DID.
func (d *Deriver) Derive(publicKey string, deviceID string) (DID, error) {
	key, err := CanonicalPublicKey(publicKey)
	if err != nil {
		return "", err
	}
	if err := validateDeviceID(deviceID); err != nil {
		return "", err
	}
	return d.digest(tagMaster, key, deviceID), nil
}

// DeriveBytes is Derive for raw key bytes, canonicalized to standard base64.
func (d *Deriver) DeriveBytes(publicKey []byte, deviceID string) (DID, error) {
	key, err := CanonicalPublicKeyBytes(publicKey)
	if err != nil {
		return "", err
	}
	if err := validateDeviceID(deviceID); err != nil {
		return "", err
	}
	return d.digest(tagMaster, key, deviceID), nil
}

// Pairwise derives the identifier a subject presents to one relying party.
// It is deterministic per (master, relyingPartyID) and cannot be linked to
// the master DID or to other relying parties without the salt.
func (d *Deriver) Pairwise(master DID, relyingPartyID string) (DID, error) {
	if !IsValid(string(master)) {
		return "", dErrors.New(dErrors.CodeMalformedDID, "master did is malformed")
	}
	rp := strings.TrimSpace(relyingPartyID)
	if rp == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "relying party id is empty")
	}
	if len(rp) > MaxDeviceIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "relying party id exceeds maximum length")
	}
	return d.digest(tagPairwise, string(master), strings.ToLower(rp)), nil
}

// digest hashes length-prefixed fields followed by the salt, so that field
// boundaries are unambiguous.
func (d *Deriver) digest(tag string, fields ...string) DID {
	h := d.alg.newHash()
	writeField(h, tag)
	for _, f := range fields {
		writeField(h, f)
	}
	writeField(h, string(d.salt))

	sum := h.Sum(nil)
	buf := make([]byte, len(Prefix)+hex.EncodedLen(len(sum)))
	copy(buf, Prefix)
	hex.Encode(buf[len(Prefix):], sum)
	return DID(buf)
}

func writeField(h hash.Hash, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])      //nolint:errcheck // hash.Hash writes never fail
	h.Write([]byte(s)) //nolint:errcheck // hash.Hash writes never fail
}
