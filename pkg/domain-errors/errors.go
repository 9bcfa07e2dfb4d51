// Package domainerrors provides coded errors for the service layer.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors here so the transport layer can map a stable code to
// an HTTP status without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeNotFound: a referenced entity id does not exist.
	CodeNotFound Code = "not_found"
	// CodeValidation: malformed input (self-merge, unknown enum value, bad email).
	CodeValidation Code = "validation"
	// CodeConflict: the operation conflicts with current state (e.g. audit
	// chain integrity failure, duplicate provisioning of an absorbed request).
	CodeConflict Code = "conflict"
	// CodeTokenInvalid: agreement-link signature attempted against a
	// missing, expired, or already-used link.
	CodeTokenInvalid Code = "token_invalid"
	// CodeUnavailable: a persistence or notification collaborator failed.
	CodeUnavailable Code = "unavailable"
	// CodeForbidden: the actor's role does not permit the operation.
	CodeForbidden Code = "forbidden"
	// CodeInternal: unexpected failure; the fallback classification.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause so errors.Is and
// errors.As keep working through the service layer.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
