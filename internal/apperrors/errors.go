// Package apperrors provides structured protocol errors with sentinel classification.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrSerialization  = errors.New("serialization error")
	ErrMissingContext = errors.New("missing bootstrap context")
	ErrDecode         = errors.New("decode error")
	ErrTransport      = errors.New("transport error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For configuration/serialization errors (e.g., "extras.retries")
	Resource string // For transport errors (e.g., channel path, env var name)
	Op       string // Operation that failed (e.g., "channel.append")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Configuration creates a configuration error for an invalid or missing setting.
func Configuration(field, message string) error {
	return &Error{
		Sentinel: ErrConfiguration,
		Message:  message,
		Field:    field,
	}
}

// Serialization creates a serialization error for a value that cannot be
// represented in the interchange format.
func Serialization(field, message string) error {
	return &Error{
		Sentinel: ErrSerialization,
		Message:  message,
		Field:    field,
	}
}

// MissingContext creates an error for a bootstrap payload that was never
// injected into the named resource. Fatal on the remote side.
func MissingContext(resource string) error {
	return &Error{
		Sentinel: ErrMissingContext,
		Message:  fmt.Sprintf("no bootstrap payload found in %s", resource),
		Resource: resource,
	}
}

// Decode creates a recoverable per-record decode error. Readers skip the
// record and continue the stream.
func Decode(op string, cause error) error {
	return &Error{
		Sentinel: ErrDecode,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Transport creates a transient transport error. Pollers retry these on the
// next tick until their retry budget is exhausted.
func Transport(op, resource string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Resource: resource,
		Op:       op,
		Cause:    cause,
	}
}
