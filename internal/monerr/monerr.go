// Package monerr provides the typed errors surfaced by the monitoring
// core. Every error carries a stable machine-readable kind plus a
// human-readable message, so callers never see an unclassified failure.
package monerr

import (
	"errors"
	"fmt"
)

// Kind identifies the error class.
type Kind string

const (
	// KindValidation marks malformed input rejected before any write.
	KindValidation Kind = "validation"
	// KindStorage marks a backend I/O failure.
	KindStorage Kind = "storage"
	// KindTimeout marks a probe or query that exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindNotFound marks a reference to a missing alert or target.
	KindNotFound Kind = "not_found"
	// KindFormat marks an export that cannot represent its result set.
	KindFormat Kind = "format"
)

// Error is a typed error with a stable kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a typed error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a typed error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or an empty kind when err is
// not a typed error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
