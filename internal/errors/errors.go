// Package errors defines the service error taxonomy shared by all layers.
// Every error that crosses a package boundary is either a *ServiceError or
// wraps one; the HTTP layer maps them to responses without inspecting
// free-form strings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeAuthenticationFailed    ErrorCode = "AUTHENTICATION_FAILED"
	CodeInvalidToken            ErrorCode = "INVALID_TOKEN"
	CodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	CodeAlreadyPurchased        ErrorCode = "ALREADY_PURCHASED"
	CodeInsufficientFunds       ErrorCode = "INSUFFICIENT_FUNDS"
	CodeRegistrationFailed      ErrorCode = "REGISTRATION_FAILED"
	CodeChainUnavailable        ErrorCode = "CHAIN_UNAVAILABLE"
	CodeChainRejected           ErrorCode = "CHAIN_REJECTED"
	CodeContentStoreUnavailable ErrorCode = "CONTENT_STORE_UNAVAILABLE"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeRateLimitExceeded       ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries an error code, a human-readable message, the HTTP
// status it maps to, and optional structured details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail entry and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the caller may safely retry the failed request.
func (e *ServiceError) Retryable() bool {
	return e.Code == CodeChainUnavailable
}

// GetServiceError returns the *ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}

// =============================================================================
// Constructors
// =============================================================================

// AuthenticationFailed indicates a wallet signature did not match the
// claimed address. Rejected before any state change.
func AuthenticationFailed(message string) *ServiceError {
	if message == "" {
		message = "signature verification failed"
	}
	return &ServiceError{Code: CodeAuthenticationFailed, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Unauthorized indicates a missing or malformed credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return &ServiceError{Code: CodeInvalidToken, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken indicates a bearer token that failed validation.
func InvalidToken(err error) *ServiceError {
	return &ServiceError{Code: CodeInvalidToken, Message: "invalid token", HTTPStatus: http.StatusUnauthorized, Err: err}
}

// Validation indicates input rejected before any ledger call was made.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidationFailed, Message: message, HTTPStatus: http.StatusBadRequest}
}

// AlreadyPurchased indicates the (course, identity) pair is already marked
// purchased on the ledger; no second purchase is ever submitted.
func AlreadyPurchased(courseID uint64) *ServiceError {
	return (&ServiceError{Code: CodeAlreadyPurchased, Message: "course already purchased", HTTPStatus: http.StatusBadRequest}).
		WithDetails("course_id", courseID)
}

// InsufficientFunds indicates the signer balance cannot cover the price,
// whether detected by the pre-check or reported by the ledger.
func InsufficientFunds(message string) *ServiceError {
	if message == "" {
		message = "insufficient funds"
	}
	return &ServiceError{Code: CodeInsufficientFunds, Message: message, HTTPStatus: http.StatusBadRequest}
}

// RegistrationFailed indicates the ledger rejected a registration for a
// reason other than already-registered.
func RegistrationFailed(err error) *ServiceError {
	return &ServiceError{Code: CodeRegistrationFailed, Message: "ledger registration failed", HTTPStatus: http.StatusBadGateway, Err: err}
}

// ChainUnavailable indicates a timeout or unreachable ledger after the
// retry budget was exhausted. Retryable by the caller.
func ChainUnavailable(err error) *ServiceError {
	return &ServiceError{Code: CodeChainUnavailable, Message: "ledger unavailable", HTTPStatus: http.StatusServiceUnavailable, Err: err}
}

// ChainRejected indicates the ledger reverted the operation. Terminal.
func ChainRejected(reason string, err error) *ServiceError {
	message := "ledger rejected operation"
	e := &ServiceError{Code: CodeChainRejected, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
	if reason != "" {
		e.WithDetails("reason", reason)
	}
	return e
}

// ContentStoreUnavailable indicates a content-store write failed. Fatal for
// write flows; read flows degrade to fallback values instead.
func ContentStoreUnavailable(err error) *ServiceError {
	return &ServiceError{Code: CodeContentStoreUnavailable, Message: "content store unavailable", HTTPStatus: http.StatusBadGateway, Err: err}
}

// NotFound indicates an unknown resource.
func NotFound(message string) *ServiceError {
	if message == "" {
		message = "not found"
	}
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// RateLimitExceeded indicates the per-identity request budget was exceeded.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return (&ServiceError{Code: CodeRateLimitExceeded, Message: "rate limit exceeded", HTTPStatus: http.StatusTooManyRequests}).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}
