package service

import (
	"errors"
	"slices"
	"time"

	"praman/internal/did"
	"praman/internal/vc/models"
	"praman/internal/vc/signer"
)

// verify checks structure, then signature, then expiry, and reports the
// first failure.
func verify(c *models.Credential, pub signer.PublicKey, now time.Time) models.VerifyResult {
	if !wellFormed(c) {
		return models.Invalid(models.ReasonMalformedCredential)
	}
	payload, err := models.CanonicalPayload(c)
	if err != nil {
		return models.Invalid(models.ReasonMalformedCredential)
	}

	if err := signer.VerifyDetached(c.Proof.JWS, payload, pub); err != nil {
		if errors.Is(err, signer.ErrSignatureInvalid) {
			return models.Invalid(models.ReasonSignatureMismatch)
		}
		return models.Invalid(models.ReasonMalformedCredential)
	}

	if c.IsExpiredAt(now) {
		return models.Invalid(models.ReasonExpired)
	}
	return models.Valid()
}

func wellFormed(c *models.Credential) bool {
	if c == nil || c.Proof == nil || c.Proof.JWS == "" {
		return false
	}
	if !slices.Contains(c.Context, models.ContextV1) || !slices.Contains(c.Type, models.TypeVerifiableCredential) {
		return false
	}
	if _, err := models.ParseCredentialID(c.ID); err != nil {
		return false
	}
	issuer, err := did.Parse(c.Issuer)
	if err != nil {
		return false
	}
	if !did.IsValid(c.CredentialSubject.ID) {
		return false
	}
	if c.IssuanceDate.IsZero() || c.ExpirationDate.IsZero() {
		return false
	}
	return c.Proof.ProofPurpose == models.ProofPurposeAssertion &&
		c.Proof.VerificationMethod == issuer.KeyID()
}
