// Package apperr defines the failure taxonomy shared by every core
// operation. Callers dispatch on Kind, never on concrete error types,
// and the HTTP boundary maps kinds to status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero value; treated as Internal at the boundary.
	KindUnknown Kind = iota
	// KindBadRequest: malformed or missing caller input.
	KindBadRequest
	// KindUnauthorized: missing, invalid, expired or consumed credential.
	KindUnauthorized
	// KindForbidden: authenticated but not permitted.
	KindForbidden
	// KindNotFound: referenced entity does not exist.
	KindNotFound
	// KindConflict: uniqueness violation or state mismatch.
	KindConflict
	// KindInternal: collaborator or storage failure. The message shown to
	// callers must stay generic; the wrapped cause is for logs only.
	KindInternal
)

// Error is a tagged failure value.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a tagged error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a tagged error retaining the underlying cause for
// operator-facing logging.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }

// Internal wraps an unexpected failure. The caller-visible message is
// fixed so provider detail never leaks through the boundary.
func Internal(err error) *Error {
	return Wrap(KindInternal, "internal error", err)
}

// KindOf extracts the kind from an error chain. Untagged errors report
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to the transport status the boundary returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the caller-visible message for err. Internal and
// untagged errors collapse to a generic message.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindUnknown {
		return e.Message
	}
	return "internal error"
}
