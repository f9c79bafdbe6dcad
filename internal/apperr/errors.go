// Package apperr defines the error kinds shared by the store, the tracking
// engine, the directory and the HTTP layer.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAmbiguous
	KindAuth
	KindForbidden
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAmbiguous:
		return "ambiguous_state"
	case KindAuth:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindTransient:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Code    string // machine readable, e.g. "trip_conflict"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code, format string, args ...any) *Error {
	code = codeOr(kind, code)
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func codeOr(kind Kind, code string) string {
	if code == "" {
		return kind.String()
	}
	return code
}

func Validation(code, format string, args ...any) *Error {
	return newError(KindValidation, code, format, args...)
}

func NotFound(code, format string, args ...any) *Error {
	return newError(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return newError(KindConflict, code, format, args...)
}

func Ambiguous(code, format string, args ...any) *Error {
	return newError(KindAmbiguous, code, format, args...)
}

func Auth(code, format string, args ...any) *Error {
	return newError(KindAuth, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Error {
	return newError(KindForbidden, code, format, args...)
}

// Transient wraps a store I/O failure that is safe to retry.
func Transient(err error, format string, args ...any) *Error {
	e := newError(KindTransient, "", format, args...)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	e := newError(KindInternal, "", format, args...)
	e.Err = err
	return e
}

// KindOf reports the kind of err. Context deadline and cancellation errors
// are treated as transient; anything unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindAmbiguous:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Describe returns the code and message to expose to API clients. Internal
// errors never leak their wrapped cause.
func Describe(err error) (code, message string) {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return codeOr(e.Kind, e.Code), "internal server error"
		}
		return e.Code, e.Message
	}
	kind := KindOf(err)
	if kind == KindTransient {
		return kind.String(), "service temporarily unavailable"
	}
	return KindInternal.String(), "internal server error"
}
