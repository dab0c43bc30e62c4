package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"praman/internal/did"
	dErrors "praman/pkg/domain-errors"
)

const (
	// ContextV1 is the W3C credentials JSON-LD context.
	ContextV1 = "https://www.w3.org/2018/credentials/v1"
	// TypeVerifiableCredential is the base type every credential carries.
	TypeVerifiableCredential = "VerifiableCredential"
	// ProofPurposeAssertion is the only proof purpose this issuer produces.
	ProofPurposeAssertion = "assertionMethod"

	credentialIDPrefix = "urn:uuid:"
)

// CredentialID is a urn:uuid credential identifier.
type CredentialID string

// NewCredentialID generates a fresh random credential ID.
func NewCredentialID() CredentialID {
	return CredentialID(credentialIDPrefix + uuid.NewString())
}

// ParseCredentialID validates a credential ID string.
func ParseCredentialID(value string) (CredentialID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credentialId is required")
	}
	if !strings.HasPrefix(value, credentialIDPrefix) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credentialId must start with urn:uuid:")
	}
	if _, err := uuid.Parse(strings.TrimPrefix(value, credentialIDPrefix)); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credentialId format")
	}
	return CredentialID(value), nil
}

func (id CredentialID) String() string { return string(id) }

// Claims is an open, caller-defined set of scalar attributes.
type Claims map[string]any

// UnmarshalJSON keeps numbers as json.Number so integers beyond 2^53 are
// signed exactly as sent.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*c = raw
	return nil
}

// Subject is the credentialSubject block: the subject DID plus its claims,
// flattened into one JSON object.
type Subject struct {
	ID     string
	Claims Claims
}

func (s Subject) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Claims)+1)
	for k, v := range s.Claims {
		out[k] = v
	}
	out["id"] = s.ID
	return json.Marshal(out)
}

func (s *Subject) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	id, ok := raw["id"].(string)
	if !ok {
		return errors.New("credentialSubject.id must be a string")
	}
	delete(raw, "id")
	s.ID = id
	s.Claims = raw
	return nil
}

// Proof is the embedded signature block. JWS is a detached compact JWS over
// the canonical payload.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	ProofPurpose       string    `json:"proofPurpose"`
	VerificationMethod string    `json:"verificationMethod"`
	JWS                string    `json:"jws"`
}

// Credential is a signed Verifiable Credential. It is immutable once signed;
// changing claims means issuing a new credential.
type Credential struct {
	Context           []string  `json:"@context"`
	ID                string    `json:"id"`
	Type              []string  `json:"type"`
	Issuer            string    `json:"issuer"`
	IssuanceDate      time.Time `json:"issuanceDate"`
	ExpirationDate    time.Time `json:"expirationDate"`
	CredentialSubject Subject   `json:"credentialSubject"`
	Proof             *Proof    `json:"proof,omitempty"`
}

// IssuerDID returns the parsed issuer DID.
func (c *Credential) IssuerDID() (did.DID, error) {
	return did.Parse(c.Issuer)
}

// IsExpiredAt reports whether the credential has expired at t.
func (c *Credential) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpirationDate)
}

// IssueCommand captures the data required to issue a credential.
type IssueCommand struct {
	SubjectDID string
	Claims     Claims
	Validity   time.Duration
	Types      []string
}

// Reason explains a failed verification.
type Reason string

const (
	ReasonSignatureMismatch   Reason = "SignatureMismatch"
	ReasonExpired             Reason = "Expired"
	ReasonMalformedCredential Reason = "MalformedCredential"
	ReasonRevoked             Reason = "Revoked"
	ReasonIssuerUnknown       Reason = "IssuerUnknown"
)

// VerifyResult reports the validity of a credential. Verification failures
// are results, never errors.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
}

// Valid is the successful result.
func Valid() VerifyResult { return VerifyResult{Valid: true} }

// Invalid builds a failed result with its reason.
func Invalid(reason Reason) VerifyResult { return VerifyResult{Valid: false, Reason: reason} }

// BatchResult is the per-item outcome of a batch issuance. Exactly one of
// Credential and Err is set.
type BatchResult struct {
	Index      int
	Credential *Credential
	Err        error
}

// PresentationItem is the outcome for one credential of a presentation.
type PresentationItem struct {
	CredentialID string `json:"credential,omitempty"`
	Issuer       string `json:"issuer,omitempty"`
	VerifyResult
}

// PresentationResult is verified only when every credential is.
type PresentationResult struct {
	Verified         bool               `json:"verified"`
	Results          []PresentationItem `json:"results"`
	TotalCredentials int                `json:"totalCredentials"`
}

// CredentialStatus reports whether a credential has been revoked.
type CredentialStatus string

const (
	StatusActive  CredentialStatus = "active"
	StatusRevoked CredentialStatus = "revoked"
)

// Revocation is the only credential state held server-side: no claims and no
// subject identifiers.
type Revocation struct {
	CredentialID CredentialID
	IssuerDID    string
	Reason       string
	RevokedAt    time.Time
}

// Status is the answer to a status lookup.
type Status struct {
	CredentialID CredentialID
	Status       CredentialStatus
	RevokedAt    *time.Time
	Reason       string
}
