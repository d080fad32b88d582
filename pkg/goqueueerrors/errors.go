// Package goqueueerrors defines the error taxonomy shared by every
// component of the queue: store adapter, queue service, scheduler and
// worker runtime all translate lower-level failures into one of these
// kinds at their boundary so callers never see go-redis or miniredis
// types.
package goqueueerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the taxonomy of errors the queue can surface.
type Kind int

const (
	// KindStoreUnavailable indicates connectivity or protocol failure
	// talking to the backing store. Retryable by the caller.
	KindStoreUnavailable Kind = iota
	// KindSerialization indicates a payload or result failed encode
	// or decode. Non-retryable; the task moves to Failed.
	KindSerialization
	// KindUnknownHandler indicates no handler is registered for a
	// task's name. Non-retryable; the task moves to Failed.
	KindUnknownHandler
	// KindHandlerFailure indicates user code returned an error.
	// Retryable until max_retries is exhausted.
	KindHandlerFailure
	// KindTimeout indicates execution exceeded task_timeout.
	// Retryable.
	KindTimeout
	// KindCancelled indicates shutdown interrupted execution.
	// Retryable.
	KindCancelled
	// KindConfiguration indicates invalid configuration at startup.
	// Fatal.
	KindConfiguration
	// KindNotFound indicates a queried task or schedule id does not
	// exist. Returned as absence, not raised as a hard failure by
	// most callers.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindSerialization:
		return "serialization"
	case KindUnknownHandler:
		return "unknown_handler"
	case KindHandlerFailure:
		return "handler_failure"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried across package boundaries.
// It wraps an underlying cause (when present) with a stack via
// github.com/pkg/errors, keeping the original error inspectable with
// errors.Is / errors.As through Unwrap.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.cause }

// New builds a taxonomy error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a taxonomy kind to an underlying cause, annotating it
// with a stack trace via pkg/errors so the original failure site is
// still visible in logs.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
