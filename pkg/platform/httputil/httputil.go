package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "praman/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error returned by the HTTP surface.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Internal failures never expose their message or cause.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		resp := ErrorResponse{Code: string(domainErr.Code), Message: domainErr.Message}
		if status >= http.StatusInternalServerError {
			resp.Message = "internal error"
		}
		WriteJSON(w, status, resp)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    string(dErrors.CodeInternal),
		Message: "internal error",
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInvalidKeyFormat, dErrors.CodeInvalidDeviceID,
		dErrors.CodeMalformedDID, dErrors.CodeInvalidSubject, dErrors.CodeMalformedCredential:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeGone, dErrors.CodeExpired:
		return http.StatusGone
	case dErrors.CodeSignatureMismatch:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
