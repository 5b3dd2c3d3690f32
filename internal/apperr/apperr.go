// Package apperr defines the error taxonomy shared by the service layer and
// the HTTP layer. Services return *Error values; handlers map Kind to a status.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error by who is at fault and how the caller should react.
type Kind string

const (
	Validation    Kind = "VALIDATION_ERROR"
	NotFound      Kind = "NOT_FOUND"
	Conflict      Kind = "CONFLICT"
	Forbidden     Kind = "FORBIDDEN"
	Unauthorized  Kind = "UNAUTHORIZED"
	Configuration Kind = "CONFIGURATION_ERROR"
	Storage       Kind = "INTERNAL_ERROR"
)

// Error is a classified error. Message is safe to show to callers; Err holds
// the underlying cause and is never rendered to them.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so package-level
// values like ErrActiveKeyExists work with errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// KindOf returns the kind of the first *Error in err's chain, or Storage when
// err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

// Message returns the caller-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Storage {
		return e.Message
	}
	return "An unexpected error occurred"
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
