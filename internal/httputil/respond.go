// Package httputil provides JSON request/response helpers shared by the
// HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/learnledger/backend/internal/errors"
)

const maxBodyBytes = 1 << 20

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteServiceError writes err as a structured error response, mapping
// unknown errors to 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("", err)
	}
	WriteJSON(w, svcErr.HTTPStatus, errorBody{Error: errorInfo{
		Code:    string(svcErr.Code),
		Message: svcErr.Message,
		Details: svcErr.Details,
	}})
}

// BadRequest writes a validation error response.
func BadRequest(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.Validation(message))
}

// Unauthorized writes an authentication error response.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.Unauthorized(message))
}

// NotFound writes a not-found error response.
func NotFound(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.NotFound(message))
}

// DecodeJSON decodes a bounded JSON request body into target, writing an
// error response and returning false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}
