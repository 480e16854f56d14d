// Package domainerrors defines coded errors returned across service boundaries.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate those
// into coded errors here so callers can branch on the code without knowing which
// store or directory produced the failure.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure.
type Code string

const (
	// Identity resolution
	CodeNotFound             Code = "not_found"
	CodeAccountDisabled      Code = "account_disabled"
	CodeInvalidCredential    Code = "invalid_credential"
	CodeDirectoryUnavailable Code = "directory_unavailable"
	CodeMethodDisabled       Code = "method_disabled"
	CodeNotAuthorized        Code = "not_authorized"
	CodeLockedOut            Code = "locked_out"

	// Protected records
	CodeCorruptedCiphertext Code = "corrupted_ciphertext"
	CodeDuplicateIdentifier Code = "duplicate_identifier"

	// Generic
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error carries a code, a user-safe message, and an optional cause.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the message without the code or the wrapped cause.
func (e *Error) UserMessage() string {
	return e.Message
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the outermost coded error in the chain has the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost coded error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// UserMessage extracts the user-safe message from err. Uncoded errors
// collapse to a generic message so internals are not leaked.
func UserMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
