package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives used at every trust boundary.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "did not registered"}
		s.Equal("did not registered", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeNotFound}
		s.Equal("NotFound", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		err1 := &Error{Code: CodeMalformedDID, Message: "bad prefix"}
		err2 := &Error{Code: CodeMalformedDID, Message: "bad length"}
		s.True(err1.Is(err2))
	})

	s.Run("does not match different codes", func() {
		s.False((&Error{Code: CodeNotFound}).Is(&Error{Code: CodeGone}))
	})

	s.Run("does not match non-domain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("NotFound")))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeSignatureMismatch, Message: "original"}
		wrapped := fmt.Errorf("verify: %w", inner)
		s.True(errors.Is(wrapped, &Error{Code: CodeSignatureMismatch}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code when wrapping domain error", func() {
		original := New(CodeInvalidKeyFormat, "public key is empty")
		wrapped := Wrap(original, CodeInternal, "derive failed")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeInvalidKeyFormat, domainErr.Code)
		s.Equal("derive failed", domainErr.Message)
	})

	s.Run("uses provided code when wrapping non-domain error", func() {
		wrapped := Wrap(errors.New("rng exhausted"), CodeCryptoFailure, "signing failed")
		s.Equal(CodeCryptoFailure, CodeOf(wrapped))
	})

	s.Run("wrapped error is accessible via Unwrap", func() {
		original := errors.New("root cause")
		s.True(errors.Is(Wrap(original, CodeInternal, "service error"), original))
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.True(HasCode(New(CodeGone, "deactivated"), CodeGone))
	s.False(HasCode(New(CodeGone, "deactivated"), CodeNotFound))
	s.False(HasCode(errors.New("plain"), CodeNotFound))
	s.False(HasCode(nil, CodeNotFound))
	s.True(HasCode(Wrap(New(CodeConflict, "dup"), CodeInternal, "save"), CodeConflict))
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeExpired, CodeOf(New(CodeExpired, "session expired")))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
}

func (s *DomainErrorsSuite) TestIsInputCode() {
	for _, c := range []Code{CodeInvalidInput, CodeInvalidKeyFormat, CodeInvalidDeviceID, CodeMalformedDID, CodeInvalidSubject} {
		s.True(IsInputCode(c), string(c))
	}
	for _, c := range []Code{CodeCryptoFailure, CodeNotFound, CodeInternal, CodeSignatureMismatch} {
		s.False(IsInputCode(c), string(c))
	}
}
