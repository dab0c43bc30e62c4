package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "praman/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type validatingRequest struct {
	Name string `json:"name"`
}

func (r *validatingRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type fullRequest struct {
	Name       string `json:"name"`
	sanitized  bool
	normalized bool
}

func (r *fullRequest) Sanitize()  { r.sanitized = true }
func (r *fullRequest) Normalize() { r.normalized = true }
func (r *fullRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type subjectRequest struct {
	SubjectDID string `json:"subjectDID"`
}

func (r *subjectRequest) Validate() error {
	if r.SubjectDID == "" {
		return dErrors.New(dErrors.CodeInvalidSubject, "subjectDID is required")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("successful decode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test","value":42}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[testRequest](w, req, discardLogger(), ctx, "req-1")
		assert.True(t, ok)
		require.NotNil(t, result)
		assert.Equal(t, 42, result.Value)
	})

	t.Run("invalid JSON returns InvalidInput", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{invalid json}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[testRequest](w, req, discardLogger(), ctx, "req-1")
		assert.False(t, ok)
		assert.Nil(t, result)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InvalidInput", decodeError(t, w).Code)
	})

	t.Run("empty body returns error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(""))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[testRequest](w, req, discardLogger(), ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "request body is empty", decodeError(t, w).Message)
	})

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"syntax error reports offset", `{"name":}`, "malformed JSON at offset"},
		{"type mismatch names field", `{"value":"forty-two"}`, `field "value" must be int`},
		{"trailing data", `{"name":"a"}{"name":"b"}`, "request body must contain a single JSON value"},
		{"oversized body", `{"name":"` + strings.Repeat("x", MaxBodyBytes) + `"}`, "request body exceeds 1048576 bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			_, ok := DecodeJSON[testRequest](w, req, discardLogger(), ctx, "req-1")
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.True(t, strings.HasPrefix(decodeError(t, w).Message, tc.msg), decodeError(t, w).Message)
		})
	}
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("validation failure is reported as InvalidInput", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":""}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[validatingRequest](w, req, discardLogger(), ctx, "req-1")
		assert.False(t, ok)
		assert.Nil(t, result)
		body := decodeError(t, w)
		assert.Equal(t, "InvalidInput", body.Code)
		assert.Contains(t, body.Message, "name is required")
	})

	t.Run("calls all preparation methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"test"}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[fullRequest](w, req, discardLogger(), ctx, "req-1")
		require.True(t, ok)
		assert.True(t, result.sanitized)
		assert.True(t, result.normalized)
	})

	t.Run("preserves domain error code from Validate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"subjectDID":""}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[subjectRequest](w, req, discardLogger(), ctx, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "InvalidSubject", decodeError(t, w).Code)
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeNotFound, "did not registered"), http.StatusNotFound, "NotFound"},
		{dErrors.New(dErrors.CodeMalformedDID, "bad did"), http.StatusBadRequest, "MalformedDID"},
		{dErrors.New(dErrors.CodeConflict, "dup"), http.StatusConflict, "Conflict"},
		{dErrors.New(dErrors.CodeUnauthorized, "admin token required"), http.StatusUnauthorized, "Unauthorized"},
		{dErrors.New(dErrors.CodeGone, "deactivated"), http.StatusGone, "Gone"},
		{dErrors.New(dErrors.CodeSignatureMismatch, "sig"), http.StatusUnprocessableEntity, "SignatureMismatch"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
		})
	}

	t.Run("internal errors do not leak their cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(errors.New("dial tcp 10.0.0.5:5432"), dErrors.CodeCryptoFailure, "sign failed: dial tcp"))
		body := decodeError(t, w)
		assert.Equal(t, "CryptoFailure", body.Code)
		assert.Equal(t, "internal error", body.Message)
	})
}
