// Package apperr defines the error taxonomy shared by services and handlers.
// Callers match kinds with errors.Is; the message carried by *Error is safe to
// show to clients, the wrapped cause is not.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrDuplicateIdentifier   = errors.New("duplicate identifier")
	ErrNotFound              = errors.New("not found")
	ErrInvalidCredential     = errors.New("invalid credential")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrNotInFamily           = errors.New("not in family")
	ErrInvalidOrExpiredCode  = errors.New("invalid or expired code")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrStorage               = errors.New("storage failure")
)

// Error is a classified failure with a client-facing message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches the error kind
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind with a public message
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation reports a malformed or missing field
func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing resource
func NotFound(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

// Storage wraps an unexpected backing-store error. The cause is kept for logs only.
func Storage(op string, err error) *Error {
	return &Error{Kind: ErrStorage, Message: "internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// Message returns the client-facing message for err.
// Unclassified errors are reported as internal errors without their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && !errors.Is(e.Kind, ErrStorage) {
		return e.Message
	}
	return "internal server error"
}
