package models

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil/base58"

	"praman/internal/did"
	dErrors "praman/pkg/domain-errors"
)

const (
	ContextDIDV1   = "https://www.w3.org/ns/did/v1"
	ContextEd25519 = "https://w3id.org/security/suites/ed25519-2020/v1"
	ContextSecp256 = "https://w3id.org/security/suites/secp256k1-2019/v1"

	MaxServices = 8
)

// KeyType is a verification method type.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519VerificationKey2020"
	KeyTypeSecp256k1 KeyType = "EcdsaSecp256k1VerificationKey2019"
	KeyTypeP256      KeyType = "EcdsaSecp256r1VerificationKey2019"
	KeyTypeRSA       KeyType = "RsaVerificationKey2018"
)

// ParseKeyType accepts the supported verification method types.
func ParseKeyType(s string) (KeyType, error) {
	switch kt := KeyType(strings.TrimSpace(s)); kt {
	case KeyTypeEd25519, KeyTypeSecp256k1, KeyTypeP256, KeyTypeRSA:
		return kt, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidKeyFormat, "unsupported key type")
	}
}

// ValidatePublicKey checks that key parses as kt. Ed25519 keys are 32 raw
// bytes, secp256k1 keys are SEC1 points, P-256 and RSA keys are DER SPKI.
func ValidatePublicKey(kt KeyType, key []byte) error {
	invalid := func(msg string) error {
		return dErrors.New(dErrors.CodeInvalidKeyFormat, msg)
	}
	switch kt {
	case KeyTypeEd25519:
		if len(key) != ed25519.PublicKeySize {
			return invalid("ed25519 public key must be 32 bytes")
		}
	case KeyTypeSecp256k1:
		if _, err := btcec.ParsePubKey(key); err != nil {
			return invalid("invalid secp256k1 public key")
		}
	case KeyTypeP256:
		pub, err := x509.ParsePKIXPublicKey(key)
		if err != nil {
			return invalid("invalid P-256 public key")
		}
		ec, ok := pub.(*ecdsa.PublicKey)
		if !ok || ec.Curve != elliptic.P256() {
			return invalid("public key is not P-256")
		}
	case KeyTypeRSA:
		pub, err := x509.ParsePKIXPublicKey(key)
		if err != nil {
			return invalid("invalid RSA public key")
		}
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return invalid("public key is not RSA")
		}
	default:
		return invalid("unsupported key type")
	}
	return nil
}

// Service is a service endpoint advertised in the DID Document.
type Service struct {
	ID              string `json:"id" bson:"id"`
	Type            string `json:"type" bson:"type"`
	ServiceEndpoint string `json:"serviceEndpoint" bson:"serviceEndpoint"`
}

// ValidateServices checks service entries and fills relative ids.
func ValidateServices(d did.DID, services []Service) ([]Service, error) {
	if len(services) > MaxServices {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "too many services")
	}
	out := make([]Service, 0, len(services))
	for i, svc := range services {
		if strings.TrimSpace(svc.Type) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "service type is required")
		}
		u, err := url.Parse(svc.ServiceEndpoint)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "serviceEndpoint must be an absolute http(s) URL")
		}
		id := strings.TrimSpace(svc.ID)
		switch {
		case id == "":
			id = fmt.Sprintf("%s#service-%d", d, i+1)
		case strings.HasPrefix(id, "#"):
			id = d.String() + id
		}
		out = append(out, Service{ID: id, Type: svc.Type, ServiceEndpoint: u.String()})
	}
	return out, nil
}

// Registration is the stored record a DID Document is rebuilt from. It holds
// public material only.
type Registration struct {
	DID           did.DID
	KeyType       KeyType
	PublicKey     []byte
	Services      []Service
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeactivatedAt *time.Time
}

func (r Registration) IsDeactivated() bool {
	return r.DeactivatedAt != nil
}

// RegisterCommand captures the data required to register a DID.
type RegisterCommand struct {
	DID       string
	PublicKey []byte
	KeyType   string
	Services  []Service
}

// VerificationMethod is a DID Document key entry.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller"`
	PublicKeyBase64 string `json:"publicKeyBase64"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// Document is a W3C DID Document.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	Service            []Service            `json:"service,omitempty"`
	Created            time.Time            `json:"created"`
	Updated            time.Time            `json:"updated"`
	Deactivated        bool                 `json:"deactivated,omitempty"`
}

// VerificationMethodFor renders the single key of a registration.
func VerificationMethodFor(r Registration) VerificationMethod {
	return VerificationMethod{
		ID:              r.DID.KeyID(),
		Type:            string(r.KeyType),
		Controller:      r.DID.String(),
		PublicKeyBase64: base64.StdEncoding.EncodeToString(r.PublicKey),
		PublicKeyBase58: base58.Encode(r.PublicKey),
	}
}

// BuildDocument assembles the DID Document for a registration.
func BuildDocument(r Registration) *Document {
	contexts := []string{ContextDIDV1}
	switch r.KeyType {
	case KeyTypeEd25519:
		contexts = append(contexts, ContextEd25519)
	case KeyTypeSecp256k1:
		contexts = append(contexts, ContextSecp256)
	}
	keyID := r.DID.KeyID()
	services := r.Services
	if len(services) == 0 {
		services = nil
	}
	return &Document{
		Context:            contexts,
		ID:                 r.DID.String(),
		Controller:         r.DID.String(),
		VerificationMethod: []VerificationMethod{VerificationMethodFor(r)},
		Authentication:     []string{keyID},
		AssertionMethod:    []string{keyID},
		Service:            services,
		Created:            r.CreatedAt.UTC(),
		Updated:            r.UpdatedAt.UTC(),
		Deactivated:        r.IsDeactivated(),
	}
}

// Registration states reported by the status endpoint.
const (
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
)

// DIDStatus reports whether a registered DID is still active.
type DIDStatus struct {
	DID           string     `json:"did"`
	Status        string     `json:"status"`
	Active        bool       `json:"active"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

// StatusOf summarizes a registration without its key material.
func StatusOf(r Registration) *DIDStatus {
	st := &DIDStatus{DID: r.DID.String(), Status: StatusActive, Active: true}
	if r.IsDeactivated() {
		at := r.DeactivatedAt.UTC()
		st.Status = StatusDeactivated
		st.Active = false
		st.DeactivatedAt = &at
	}
	return st
}

// PairwiseDID is the identifier a subject presents to one relying party.
type PairwiseDID struct {
	DID            string `json:"pairwiseDID"`
	RelyingPartyID string `json:"relyingPartyId"`
}
