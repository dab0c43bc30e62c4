package models

import (
	"errors"
	"time"

	"praman/internal/did"
	"praman/internal/enrollment/device"
	dErrors "praman/pkg/domain-errors"
)

const (
	// ChallengeSize is the number of random bytes in a registration challenge.
	ChallengeSize = 32

	// CeremonyTimeout is the client-side timeout advertised in the options.
	CeremonyTimeout = 60 * time.Second

	ClientDataTypeCreate = "webauthn.create"

	// CodeDuplicateEnrollment is the wire code for an already registered
	// authenticator.
	CodeDuplicateEnrollment = "DUPLICATE_ENROLLMENT"

	MaxUserIDLength = 64
)

// COSE algorithm identifiers offered in pubKeyCredParams.
const (
	AlgES256 = -7
	AlgEdDSA = -8
	AlgRS256 = -257
)

// Session is a pending registration ceremony. It lives until ExpiresAt and is
// deleted after a successful verification.
type Session struct {
	UserID    string    `json:"user_id"`
	Challenge string    `json:"challenge"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type PubKeyCredParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

type AuthenticatorSelection struct {
	AuthenticatorAttachment string `json:"authenticatorAttachment"`
	UserVerification        string `json:"userVerification"`
	ResidentKey             string `json:"residentKey"`
}

// CreationOptions are the PublicKeyCredentialCreationOptions handed to the
// browser.
type CreationOptions struct {
	Challenge              string                 `json:"challenge"`
	RP                     RelyingParty           `json:"rp"`
	User                   User                   `json:"user"`
	PubKeyCredParams       []PubKeyCredParam      `json:"pubKeyCredParams"`
	Timeout                int64                  `json:"timeout"`
	Attestation            string                 `json:"attestation"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
}

// NewCreationOptions builds the options for a fresh session.
func NewCreationOptions(rp RelyingParty, session Session) CreationOptions {
	return CreationOptions{
		Challenge: session.Challenge,
		RP:        rp,
		User: User{
			ID:          session.UserID,
			Name:        session.UserID,
			DisplayName: session.UserID,
		},
		PubKeyCredParams: []PubKeyCredParam{
			{Type: "public-key", Alg: AlgES256},
			{Type: "public-key", Alg: AlgEdDSA},
			{Type: "public-key", Alg: AlgRS256},
		},
		Timeout:     CeremonyTimeout.Milliseconds(),
		Attestation: "none",
		AuthenticatorSelection: AuthenticatorSelection{
			AuthenticatorAttachment: "platform",
			UserVerification:        "required",
			ResidentKey:             "preferred",
		},
	}
}

// ClientData is the subset of CollectedClientData checked on registration.
type ClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// VerifyCommand carries the authenticator response. ClientDataJSON and
// PublicKey are base64url encoded; PublicKey is a DER SubjectPublicKeyInfo.
type VerifyCommand struct {
	UserID         string
	CredentialID   string
	ClientDataJSON string
	PublicKey      string
	ClientIP       string
	UserAgent      string
}

// Result is returned once the DID is derived and registered.
type Result struct {
	DID        did.DID     `json:"did"`
	DeviceType device.Type `json:"deviceType"`
	DeviceName string      `json:"deviceName"`
	EnrolledAt time.Time   `json:"enrolledAt"`
}

// DuplicateEnrollmentError reports an authenticator whose DID is already
// registered. It unwraps to a Conflict domain error.
type DuplicateEnrollmentError struct {
	DID did.DID
}

func (e *DuplicateEnrollmentError) Error() string {
	return "device already enrolled"
}

func (e *DuplicateEnrollmentError) Unwrap() error {
	return dErrors.New(dErrors.CodeConflict, e.Error())
}

// AsDuplicate extracts a DuplicateEnrollmentError from err.
func AsDuplicate(err error) (*DuplicateEnrollmentError, bool) {
	var dup *DuplicateEnrollmentError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}
