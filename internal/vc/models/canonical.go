package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CanonicalPayload returns the deterministic byte sequence that the proof
// signs: sorted-key JSON over everything except the proof itself. Timestamps
// are RFC 3339 UTC with second precision.
func CanonicalPayload(c *Credential) ([]byte, error) {
	claims, err := NormalizeClaims(c.CredentialSubject.Claims)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"@context":       c.Context,
		"id":             c.ID,
		"type":           c.Type,
		"issuer":         c.Issuer,
		"issuanceDate":   FormatTime(c.IssuanceDate),
		"expirationDate": FormatTime(c.ExpirationDate),
		"subject":        c.CredentialSubject.ID,
		"claims":         claims,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode canonical payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// NormalizeClaims round-trips claims through JSON with number preservation,
// so a claim set issued from Go values and the same set decoded from a
// presented credential encode identically.
func NormalizeClaims(claims Claims) (Claims, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("encode claims: %w", err)
	}
	out := Claims{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return out, nil
}

// FormatTime is the canonical timestamp encoding.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}
