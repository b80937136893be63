// Package domainerrors provides coded errors for business-rule violations.
//
// Domain errors carry a Code that the HTTP layer translates into a status,
// so services and aggregates never import net/http. Wrap infrastructure
// failures with CodeInternal at the service boundary; raise the other codes
// from aggregates and validators directly.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain error.
type Code string

const (
	// CodeInvalidState marks an illegal aggregate transition, e.g. pausing a
	// completed session.
	CodeInvalidState Code = "invalid_state"

	// CodeLocked marks any mutation attempted on a locked (approved or
	// rejected) session.
	CodeLocked Code = "locked"

	// CodeInvariantViolation marks a constructor or mutator input that would
	// leave an aggregate in an impossible state.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout marks a bounded external call that exceeded its deadline.
	// Retryable by the caller; nothing was persisted.
	CodeTimeout Code = "timeout"

	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error. Use the package constructors; the zero
// value is not meaningful.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost domain message, or empty when the error
// is not a domain error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
