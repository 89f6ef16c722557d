// Package errors provides the structured error taxonomy used across the
// Twitch integration: verification failures, credential problems, provider
// errors and rate limiting, with HTTP status mapping for the webhook route.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response mapping.
type ErrorType string

const (
	// TypeVerification indicates a delivery that failed signature or
	// freshness checks, or carried an unknown message/event type (HTTP 403).
	TypeVerification ErrorType = "verification_failed"
	// TypeMalformed indicates a body that is not valid JSON (HTTP 400).
	TypeMalformed ErrorType = "malformed_payload"
	// TypeCredentialsInvalid indicates missing or rejected client credentials.
	TypeCredentialsInvalid ErrorType = "credentials_invalid"
	// TypeAuthFailed indicates the provider rejected the token twice in a row.
	TypeAuthFailed ErrorType = "auth_failed"
	// TypeRateLimited indicates provider throttling that persisted past the
	// single bounded retry.
	TypeRateLimited ErrorType = "rate_limited"
	// TypeProvider indicates an unexpected provider HTTP status.
	TypeProvider ErrorType = "provider_error"
	// TypeInternal indicates a server-side error.
	TypeInternal ErrorType = "internal"
)

// Error is a structured error with type, message, and optional context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error

	// Status is the provider HTTP status for TypeProvider errors.
	Status int
}

func (e *Error) Error() string {
	if e.Type == TypeProvider {
		return fmt.Sprintf("%s: %s: status %d", e.Type, e.Message, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status the webhook route answers with for this error.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeVerification:
		return http.StatusForbidden
	case TypeMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// VerificationError creates a verification failure (HTTP 403).
func VerificationError(message string) *Error {
	return &Error{Type: TypeVerification, Message: message}
}

// MalformedError creates a malformed payload error (HTTP 400).
func MalformedError(cause error) *Error {
	return &Error{Type: TypeMalformed, Message: "body is not valid JSON", Cause: cause}
}

// InvalidInputError creates a malformed-input error (HTTP 400) with a
// caller-supplied message, for rejecting bad admin requests.
func InvalidInputError(message string) *Error {
	return &Error{Type: TypeMalformed, Message: message}
}

// CredentialsInvalidError creates a missing/rejected credentials error.
func CredentialsInvalidError(cause error) *Error {
	return &Error{Type: TypeCredentialsInvalid, Message: "client credentials missing or rejected", Cause: cause}
}

// AuthFailedError creates an error for a token rejected twice in a row.
func AuthFailedError(cause error) *Error {
	return &Error{Type: TypeAuthFailed, Message: "token rejected after refresh", Cause: cause}
}

// RateLimitedError creates an error for throttling that outlived the retry.
func RateLimitedError(cause error) *Error {
	return &Error{Type: TypeRateLimited, Message: "provider rate limit persisted past retry", Cause: cause}
}

// ProviderError creates an error for an unexpected provider HTTP status.
func ProviderError(message string, status int) *Error {
	return &Error{Type: TypeProvider, Message: message, Status: status}
}

// InternalError creates an internal error wrapping its cause.
func InternalError(message string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: message, Cause: cause}
}

// TypeOf returns the ErrorType of err, or TypeInternal for untyped errors.
func TypeOf(err error) ErrorType {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type
	}
	return TypeInternal
}

// IsType reports whether err carries the given type anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	var structured *Error
	return errors.As(err, &structured) && structured.Type == t
}
