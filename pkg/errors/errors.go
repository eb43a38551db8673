package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the kinds of failure an ingestion run distinguishes
type ErrorType string

const (
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeMalformed     ErrorType = "malformed"
	ErrorTypeSerialization ErrorType = "serialization"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeFatal         ErrorType = "fatal"
)

// Error is an ingestion error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// Transient reports a failure worth retrying (timeouts, 5xx, rate limiting)
func Transient(code int, msg string) *Error {
	return &Error{Type: ErrorTypeTransient, Message: msg, Code: code}
}

// Malformed reports an upstream response with an unexpected shape
func Malformed(err error, msg string) *Error {
	return Wrap(ErrorTypeMalformed, err, msg)
}

// Configuration reports invalid run parameters
func Configuration(msg string) *Error {
	return New(ErrorTypeConfiguration, msg)
}

// TypeOf returns the type of the outermost *Error in err's chain, or "" if
// there is none. A typed cause wrapped by another typed error is not reported.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// Is reports whether the outermost typed error in err's chain has type t.
// Fatal(Malformed) is fatal, not malformed.
func Is(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
