// Package sferr implements the error taxonomy shared by every store-facing
// component. Each error carries a Kind that callers branch on instead of
// string matching.
package sferr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for exit-code mapping in the CLI.
type Kind int

const (
	// KindNotFound indicates a record, revision label, or path that does not exist.
	KindNotFound Kind = iota

	// KindAlreadyExists indicates a duplicate identifier or revision label.
	KindAlreadyExists

	// KindValidationFailed indicates schema, regex, or structural violations.
	KindValidationFailed

	// KindConflict indicates the shared tree could not be synchronized:
	// blocked pulls, diverged history, failed pushes.
	KindConflict

	// KindInternal indicates an unexpected failure in the store itself.
	KindInternal
)

var kindNames = map[Kind]string{
	KindNotFound:         "not_found",
	KindAlreadyExists:    "already_exists",
	KindValidationFailed: "validation_failed",
	KindConflict:         "conflict",
	KindInternal:         "internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error wraps an underlying error with a Kind classification.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var se *Error
	if errors.As(target, &se) {
		return e.Kind == se.Kind
	}
	return false
}

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error. Returns nil when err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// AlreadyExists creates a KindAlreadyExists error.
func AlreadyExists(format string, args ...any) *Error {
	return New(KindAlreadyExists, format, args...)
}

// Validation creates a KindValidationFailed error.
func Validation(format string, args ...any) *Error {
	return New(KindValidationFailed, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
