// Package did derives, parses and pairs Bharat decentralized identifiers.
//
// A DID has the fixed form did:bharat:<64 lowercase hex>, 75 characters in
// total. The identifier is a SHA-2 or SHA-3 digest, so the grammar check is
// purely syntactic and never touches storage.
package did

import (
	"strings"

	dErrors "praman/pkg/domain-errors"
)

const (
	// Method is the DID method name.
	Method = "bharat"
	// Prefix is the scheme and method prefix of every DID.
	Prefix = "did:" + Method + ":"
	// IdentifierLength is the number of hex characters after the prefix.
	IdentifierLength = 64
	// Length is the total length of a DID string.
	Length = len(Prefix) + IdentifierLength
)

// DID is a validated Bharat DID. The zero value is not a valid DID.
type DID string

// Parse validates s against the DID grammar.
func Parse(s string) (DID, error) {
	if !IsValid(s) {
		return "", dErrors.New(dErrors.CodeMalformedDID, "did must match did:bharat:<64 lowercase hex>")
	}
	return DID(s), nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) DID {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsValid reports whether s matches the DID grammar.
func IsValid(s string) bool {
	if len(s) != Length || !strings.HasPrefix(s, Prefix) {
		return false
	}
	for i := len(Prefix); i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (d DID) String() string { return string(d) }

// Method returns the method segment ("bharat"), or "" for an invalid DID.
func (d DID) Method() string {
	if !IsValid(string(d)) {
		return ""
	}
	return Method
}

// Identifier returns the method-specific identifier.
func (d DID) Identifier() string {
	if !IsValid(string(d)) {
		return ""
	}
	return string(d)[len(Prefix):]
}

// KeyID returns the verification method id of the DID's primary key.
func (d DID) KeyID() string {
	return string(d) + "#key-1"
}

// IsZero reports whether d is unset.
func (d DID) IsZero() bool { return d == "" }
