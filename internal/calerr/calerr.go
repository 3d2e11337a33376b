// Package calerr defines the error taxonomy returned by the calibration core.
package calerr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthorization     Kind = "authorization"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindTraceability      Kind = "traceability"
	KindNotFound          Kind = "not_found"
	KindInfrastructure    Kind = "infrastructure"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

func Authorization(format string, args ...any) error {
	return newf(KindAuthorization, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}

func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

func Traceability(format string, args ...any) error {
	return newf(KindTraceability, format, args...)
}

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Infra wraps a persistence or broker failure. A nil err yields nil.
func Infra(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInfrastructure, Msg: msg, Err: errors.WithStack(err)}
}

// KindOf reports the kind of err. Errors outside the taxonomy are infrastructure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
