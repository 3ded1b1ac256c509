// Package errors provides coded domain errors for the docwatch reconciliation core.
//
// Usage:
//
//	// In components - return typed errors
//	if _, exists := m.byPath[path]; exists {
//	    return errors.AlreadyExistsf("document already open: %s", path)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrFingerprintRead) {
//	    shell.ReportError(path, err)
//	    return
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeWatchTargetUnavailable:
//	        shell.Advise(path, err)
//	    case errors.CodeFingerprintRead:
//	        shell.ReportError(path, err)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeValidation    Code = "VALIDATION"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL"

	// CodeTransientObservation: the notification primitive lost events
	// (queue overflow). Recovered by a full fingerprint comparison.
	CodeTransientObservation Code = "TRANSIENT_OBSERVATION"
	// CodeWatchTargetUnavailable: the watched path's directory went away.
	CodeWatchTargetUnavailable Code = "WATCH_TARGET_UNAVAILABLE"
	// CodeFingerprintRead: the on-disk file could not be read for comparison.
	CodeFingerprintRead Code = "FINGERPRINT_READ"
	// CodeSelfWriteRace: a save was still pending when its document closed.
	CodeSelfWriteRace Code = "SELF_WRITE_RACE"
)

// Recoverable reports whether the subsystem recovers from errors with this
// code on its own, without involving the user.
func (c Code) Recoverable() bool {
	switch c {
	case CodeTransientObservation, CodeSelfWriteRace:
		return true
	default:
		return false
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists          = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation             = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict               = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal               = &Error{Code: CodeInternal, Message: "internal error"}
	ErrTransientObservation   = &Error{Code: CodeTransientObservation, Message: "file events were dropped"}
	ErrWatchTargetUnavailable = &Error{Code: CodeWatchTargetUnavailable, Message: "watch target unavailable"}
	ErrFingerprintRead        = &Error{Code: CodeFingerprintRead, Message: "failed to read file fingerprint"}
	ErrSelfWriteRace          = &Error{Code: CodeSelfWriteRace, Message: "save still pending at close"}
)

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExistsf creates an already exists error with formatted message.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// TransientObservation wraps a recoverable notification failure.
func TransientObservation(err error) *Error {
	return Wrap(err, CodeTransientObservation, "file events were dropped")
}

// WatchTargetUnavailable wraps a failure to observe path.
func WatchTargetUnavailable(path string, err error) *Error {
	return Wrapf(err, CodeWatchTargetUnavailable, "cannot watch %s", path)
}

// FingerprintRead wraps a failure to read path for comparison.
func FingerprintRead(path string, err error) *Error {
	return Wrapf(err, CodeFingerprintRead, "cannot read %s", path)
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
