package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// Values are the wire codes returned to clients in the {code, message} body.
type Code string

const (
	CodeInvalidInput        Code = "InvalidInput"
	CodeInvalidKeyFormat    Code = "InvalidKeyFormat"
	CodeInvalidDeviceID     Code = "InvalidDeviceId"
	CodeMalformedDID        Code = "MalformedDID"
	CodeInvalidSubject      Code = "InvalidSubject"
	CodeMalformedCredential Code = "MalformedCredential"
	CodeCryptoFailure       Code = "CryptoFailure"
	CodeNotFound            Code = "NotFound"
	CodeConflict            Code = "Conflict"
	CodeUnauthorized        Code = "Unauthorized"
	CodeGone                Code = "Gone"
	CodeExpired             Code = "Expired"
	CodeSignatureMismatch   Code = "SignatureMismatch"
	CodeTimeout             Code = "Timeout"
	CodeInternal            Code = "Internal"
)

// IsInputCode reports whether the code belongs to the InvalidInput family:
// failures detected before any cryptographic work or lookup.
func IsInputCode(code Code) bool {
	switch code {
	case CodeInvalidInput, CodeInvalidKeyFormat, CodeInvalidDeviceID, CodeMalformedDID,
		CodeInvalidSubject, CodeMalformedCredential:
		return true
	default:
		return false
	}
}

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
