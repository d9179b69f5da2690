// Package apperrors defines the error kinds the workflow engine reports to callers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error category returned to clients.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindIdentityUnavailable Kind = "IDENTITY_UNAVAILABLE"
	KindStorage             Kind = "STORAGE_ERROR"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// Error carries a Kind, a message safe to show to users, and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}

func NotFound(resource string) *Error {
	return New(KindNotFound, "%s not found", resource)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Storage(cause error, format string, args ...any) *Error {
	return Wrap(KindStorage, cause, format, args...)
}

func Upstream(cause error, format string, args ...any) *Error {
	return Wrap(KindUpstreamUnavailable, cause, format, args...)
}

func IdentityUnavailable(cause error, format string, args ...any) *Error {
	return Wrap(KindIdentityUnavailable, cause, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps a Kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidTransition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindIdentityUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
