// Package domainerrors defines the closed set of error kinds the
// authorization core can produce. Every component boundary returns one of
// these instead of an ad hoc error, so the HTTP edge (pkg/platform/httputil)
// can map kind to status in exactly one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a closed taxonomy of error kinds, independent of any transport.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvariantViolation Code = "invariant_violation"
	CodeMissingConsent     Code = "missing_consent"
	CodeNotFound           Code = "not_found"
	CodeRateLimited        Code = "rate_limited"
	CodeTimeout            Code = "timeout"
	CodeUnauthorized       Code = "unauthorized"
	CodeUnavailable        Code = "unavailable"
	CodeValidation         Code = "validation_error"
)

// Error is the concrete error type carried across every component boundary.
// It wraps an optional cause without leaking it to callers that only care
// about Code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error carrying cause as its unwrap target, so
// errors.Is/As still reach the original error while callers see a typed
// Code at the boundary.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err is, or wraps, an *Error with the given Code.
func HasCode(err error, code Code) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code == code
	}
	return false
}

// Is allows errors.Is(err, domainerrors.New(CodeX, "")) to match purely on
// Code, ignoring Message - useful for sentinel-style comparisons in tests.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the Code of err, defaulting to CodeInternal for anything
// that isn't a domain-errors value - the boundary never leaks raw errors.
func CodeOf(err error) Code {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return CodeInternal
}
