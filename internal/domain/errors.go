package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures for callers and the HTTP layer.
type ErrorCode string

const (
	ErrValidation    ErrorCode = "VALIDATION" // 400
	ErrAuthorization ErrorCode = "FORBIDDEN"  // 403
	ErrNotFound      ErrorCode = "NOT_FOUND"  // 404
	ErrConflict      ErrorCode = "CONFLICT"   // 409
	ErrInternal      ErrorCode = "INTERNAL"   // 500
)

// Error is the structured error carried across service boundaries. Known
// codes pass through layers unchanged; anything else is wrapped as INTERNAL
// at the boundary where it surfaces.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewValidation builds a client-fault error for malformed input.
func NewValidation(format string, args ...any) *Error {
	return &Error{Code: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorization builds a forbidden error for records not owned by the caller.
func NewAuthorization(format string, args ...any) *Error {
	return &Error{Code: ErrAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound builds a not-found error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict builds a conflict error, e.g. an activity already claimed by a
// worksheet.
func NewConflict(format string, args ...any) *Error {
	return &Error{Code: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// WrapInternal passes known taxonomy errors through unchanged and wraps
// everything else as an internal failure. The cause stays reachable via
// Unwrap but is never exposed verbatim to clients.
func WrapInternal(err error) error {
	if err == nil {
		return nil
	}
	var known *Error
	if errors.As(err, &known) {
		return err
	}
	return &Error{Code: ErrInternal, Message: "internal failure", Err: err}
}

// CodeOf returns the taxonomy code of err, or ErrInternal for unclassified
// errors.
func CodeOf(err error) ErrorCode {
	var known *Error
	if errors.As(err, &known) {
		return known.Code
	}
	return ErrInternal
}
