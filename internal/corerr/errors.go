// Package corerr defines the typed error taxonomy shared by every
// narra-core component: NotFound, Validation, ReferentialIntegrity,
// ServiceUnavailable, Store, Compute, Conflict.
package corerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error without requiring one Go type per kind.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindReferentialIntegrity Kind = "referential_integrity"
	KindServiceUnavailable   Kind = "service_unavailable"
	KindStore                Kind = "store"
	KindCompute              Kind = "compute"
	KindConflict             Kind = "conflict"
)

// Error is the single error type used across narra-core. Callers
// distinguish kinds with errors.Is/errors.As, or with this package's
// Is and Of helpers, never with type switches.
type Error struct {
	Kind     Kind
	Message  string
	EntityID string
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.EntityID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.EntityID)
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s — %s", msg, e.Hint)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind,
// so errors.Is(err, NotFound("", "")) matches any NotFound error.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return e.Kind == o.Kind
	}
	return false
}

func new_(k Kind, entityID, hint, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), EntityID: entityID, Hint: hint}
}

func NotFound(entityID, format string, args ...any) *Error {
	return new_(KindNotFound, entityID, "", format, args...)
}

func Validation(format string, args ...any) *Error {
	return new_(KindValidation, "", "", format, args...)
}

func ReferentialIntegrity(entityID, hint string) *Error {
	return new_(KindReferentialIntegrity, entityID, hint, "referenced by other records")
}

func ServiceUnavailable(format string, args ...any) *Error {
	return new_(KindServiceUnavailable, "", "", format, args...)
}

func Store(err error, format string, args ...any) *Error {
	e := new_(KindStore, "", "", format, args...)
	e.Err = err
	return e
}

func Compute(err error, format string, args ...any) *Error {
	e := new_(KindCompute, "", "", format, args...)
	e.Err = err
	return e
}

func Conflict(entityID string) *Error {
	return new_(KindConflict, entityID, "", "duplicate id")
}

// Of reports the Kind of err, or "" if err is not (or does not wrap) an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, k Kind) bool {
	return Of(err) == k
}
