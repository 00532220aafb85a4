// Package errs defines the error taxonomy shared by the engine and its adapters.
package errs

import (
	"errors"
	"net/http"
)

// Kinds. Callers match them with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotEnrolled    = errors.New("not enrolled")
	ErrProfileMissing = errors.New("profile url missing")
	ErrUpstreamFetch  = errors.New("upstream fetch failed")
	ErrInternal       = errors.New("internal error")
)

// Error carries the failing operation, its kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with no underlying cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap annotates err with op, preserving the kind of err when it has one.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// WrapKind annotates err with op and an explicit kind.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the taxonomy kind of err, ErrInternal when none matches.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotEnrolled, ErrProfileMissing, ErrUpstreamFetch, ErrInternal} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotEnrolled:
		return http.StatusForbidden
	case ErrProfileMissing:
		return http.StatusNotFound
	case ErrUpstreamFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable code for err.
func Code(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation_error"
	case ErrNotEnrolled:
		return "not_enrolled"
	case ErrProfileMissing:
		return "profile_missing"
	case ErrUpstreamFetch:
		return "upstream_fetch_failed"
	default:
		return "internal_error"
	}
}

// Cause returns the innermost error below the taxonomy wrappers, or nil when
// err carries only a kind.
func Cause(err error) error {
	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			return nil
		}
		err = e.Err
	}
	return err
}
