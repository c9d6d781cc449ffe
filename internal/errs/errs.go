// ABOUTME: Error taxonomy every core operation surfaces to its caller.
// ABOUTME: Every error crossing a component boundary carries one Kind and a message.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the category of a core error.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindForbidden          Kind = "forbidden"
	KindInvariantViolation Kind = "invariant_violation"
	KindInsufficientFunds  Kind = "insufficient_balance"
	KindTimeout            Kind = "timeout"
	KindSpawnFailed        Kind = "spawn_failed"
	KindStorage            Kind = "storage"
	KindInternal           Kind = "internal"
)

// Error is the concrete error type carried across every component
// boundary. It always has a Kind and a message, and may wrap a cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error kind represents a transient
// condition worth retrying an idempotent operation for.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorage || e.Kind == KindTimeout
}

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error { return new_(KindNotFound, format, args...) }

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error { return new_(KindConflict, format, args...) }

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) *Error { return new_(KindForbidden, format, args...) }

// InvariantViolation builds a KindInvariantViolation error.
func InvariantViolation(format string, args ...any) *Error {
	return new_(KindInvariantViolation, format, args...)
}

// InsufficientBalance builds a KindInsufficientFunds error.
func InsufficientBalance(format string, args ...any) *Error {
	return new_(KindInsufficientFunds, format, args...)
}

// Timeout builds a KindTimeout error.
func Timeout(format string, args ...any) *Error { return new_(KindTimeout, format, args...) }

// SpawnFailed builds a KindSpawnFailed error, optionally wrapping a cause.
func SpawnFailed(cause error, format string, args ...any) *Error {
	return wrap(KindSpawnFailed, cause, format, args...)
}

// Storage builds a KindStorage error wrapping the underlying driver error.
func Storage(cause error, format string, args ...any) *Error {
	return wrap(KindStorage, cause, format, args...)
}

// Internal builds a KindInternal error. Callers should log these with full
// context; they represent a broken kernel invariant, not caller error.
func Internal(format string, args ...any) *Error { return new_(KindInternal, format, args...) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
