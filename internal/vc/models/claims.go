package models

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	dErrors "praman/pkg/domain-errors"
)

const (
	MaxClaims        = 64
	MaxClaimKeyLen   = 64
	MaxClaimValueLen = 1024
)

// claimsSchema accepts flat objects of scalar values. "id" is reserved for
// the subject DID inside credentialSubject.
var claimsSchema = fmt.Sprintf(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"maxProperties": %d,
	"propertyNames": {
		"minLength": 1,
		"maxLength": %d,
		"not": {"enum": ["id"]}
	},
	"additionalProperties": {
		"type": ["string", "number", "boolean"],
		"maxLength": %d
	}
}`, MaxClaims, MaxClaimKeyLen, MaxClaimValueLen)

var (
	compiledClaims     *gojsonschema.Schema
	compiledClaimsErr  error
	compiledClaimsOnce sync.Once
)

func claimsValidator() (*gojsonschema.Schema, error) {
	compiledClaimsOnce.Do(func() {
		compiledClaims, compiledClaimsErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(claimsSchema))
	})
	return compiledClaims, compiledClaimsErr
}

// ValidateClaims checks a claim set against the claims schema.
func ValidateClaims(claims Claims) error {
	if claims == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "claims are required")
	}
	schema, err := claimsValidator()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "compile claims schema")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(claims))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "claims are not valid JSON")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return dErrors.New(dErrors.CodeInvalidInput, "invalid claims: "+strings.Join(msgs, "; "))
}
