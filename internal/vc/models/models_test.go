package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "praman/pkg/domain-errors"
)

func TestValidateClaims(t *testing.T) {
	require.NoError(t, ValidateClaims(Claims{"ageOver18": true, "name": "Asha", "score": 12.5}))

	tooMany := Claims{}
	for i := 0; i <= MaxClaims; i++ {
		tooMany[fmt.Sprintf("claim%d", i)] = i
	}
	require.Len(t, tooMany, MaxClaims+1)

	invalid := map[string]Claims{
		"nil":             nil,
		"empty":           {},
		"reserved id":     {"id": "did:bharat:x"},
		"empty key":       {"": "v"},
		"long key":        {strings.Repeat("k", MaxClaimKeyLen+1): "v"},
		"nested object":   {"address": map[string]any{"city": "Pune"}},
		"array value":     {"roles": []string{"a"}},
		"null value":      {"x": nil},
		"long value":      {"bio": strings.Repeat("x", MaxClaimValueLen+1)},
		"too many claims": tooMany,
	}
	for name, claims := range invalid {
		t.Run(name, func(t *testing.T) {
			err := ValidateClaims(claims)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
}

func TestSubjectJSONFlattensClaims(t *testing.T) {
	s := Subject{ID: "did:bharat:abc", Claims: Claims{"ageOver18": true, "score": 7}}
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"did:bharat:abc","ageOver18":true,"score":7}`, string(raw))

	var back Subject
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "did:bharat:abc", back.ID)
	assert.Equal(t, json.Number("7"), back.Claims["score"])
	_, hasID := back.Claims["id"]
	assert.False(t, hasID)

	assert.Error(t, json.Unmarshal([]byte(`{"ageOver18":true}`), &back))
}

func TestCanonicalPayloadStableAcrossDecode(t *testing.T) {
	issued := time.Date(2025, 1, 2, 3, 4, 5, 999, time.UTC)
	c := &Credential{
		Context:           []string{ContextV1},
		ID:                NewCredentialID().String(),
		Type:              []string{TypeVerifiableCredential},
		Issuer:            "did:bharat:issuer",
		IssuanceDate:      issued,
		ExpirationDate:    issued.Add(time.Hour),
		CredentialSubject: Subject{ID: "did:bharat:subject", Claims: Claims{"score": 10, "name": "<b>"}},
	}
	first, err := CanonicalPayload(c)
	require.NoError(t, err)
	assert.Contains(t, string(first), `"issuanceDate":"2025-01-02T03:04:05Z"`)
	assert.Contains(t, string(first), `"name":"<b>"`)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	var decoded Credential
	require.NoError(t, json.Unmarshal(raw, &decoded))
	second, err := CanonicalPayload(&decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestParseCredentialID(t *testing.T) {
	id := NewCredentialID()
	parsed, err := ParseCredentialID(" " + id.String() + " ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "vc_123", "urn:uuid:not-a-uuid"} {
		_, err := ParseCredentialID(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), bad)
	}
}

func TestIsExpiredAtBoundary(t *testing.T) {
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Credential{ExpirationDate: exp}
	assert.False(t, c.IsExpiredAt(exp.Add(-time.Second)))
	assert.True(t, c.IsExpiredAt(exp))
}

func TestClaimsUnmarshalKeepsLargeIntegers(t *testing.T) {
	var claims Claims
	require.NoError(t, json.Unmarshal([]byte(`{"accountNumber":9007199254740993,"ratio":0.25}`), &claims))
	assert.Equal(t, json.Number("9007199254740993"), claims["accountNumber"])
	assert.Equal(t, json.Number("0.25"), claims["ratio"])
	require.NoError(t, ValidateClaims(claims))

	normalized, err := NormalizeClaims(claims)
	require.NoError(t, err)
	raw, err := json.Marshal(normalized)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"accountNumber":9007199254740993`)
}
