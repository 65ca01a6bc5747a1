package mediaengine

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the taxonomy of errors the conference core and
// the media engine can surface to a client.
type ErrorKind string

// Error kinds.
const (
	ErrNotFound           ErrorKind = "NotFound"
	ErrAuthorization      ErrorKind = "AuthorizationError"
	ErrInvalidState       ErrorKind = "InvalidState"
	ErrIncompatibleCodecs ErrorKind = "IncompatibleCodecs"
	ErrCapacityExceeded   ErrorKind = "CapacityExceeded"
	ErrEngine             ErrorKind = "EngineError"
	ErrEngineUnavailable  ErrorKind = "EngineUnavailable"
	ErrOperationTimeout   ErrorKind = "OperationTimeout"
	ErrProtocol           ErrorKind = "ProtocolError"

	// ErrAlreadyExists covers duplicate-transport requests; WireError
	// reports it to clients under its own name, "AlreadyExists".
	ErrAlreadyExists ErrorKind = "AlreadyExists"
)

// Error is the single error type returned by every mediaengine and
// conference operation that can fail for a taxonomy reason. It wraps an
// optional underlying cause without exposing it on the wire.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError builds an Error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Error implements the error interface: the kind name, followed by
// ": " and the message when there is one. The wire-level error string
// is WireError, the kind name alone.
func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WireError is the string sent to clients in a {status:"error",error}
// envelope: the kind name alone, with no internal detail attached.
func (e *Error) WireError() string {
	return string(e.Kind)
}

// KindOf extracts the ErrorKind from err, defaulting to ErrEngine for
// errors that did not originate from this package.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ErrEngine
}
