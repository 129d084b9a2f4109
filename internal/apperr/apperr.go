// Package apperr defines the error kinds surfaced by the clinic core.
//
// Every recoverable failure is an *Error carrying a Kind. Callers match kinds
// with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrConflict) { ... }
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindOverpayment Kind = "overpayment"
	KindState       Kind = "state"
	KindDelivery    Kind = "delivery"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == string(t.Kind)
}

var (
	ErrValidation  = &Error{Kind: KindValidation, Message: string(KindValidation)}
	ErrConflict    = &Error{Kind: KindConflict, Message: string(KindConflict)}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: string(KindNotFound)}
	ErrForbidden   = &Error{Kind: KindForbidden, Message: string(KindForbidden)}
	ErrOverpayment = &Error{Kind: KindOverpayment, Message: string(KindOverpayment)}
	ErrState       = &Error{Kind: KindState, Message: string(KindState)}
	ErrDelivery    = &Error{Kind: KindDelivery, Message: string(KindDelivery)}
)

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error  { return newf(KindValidation, format, args...) }
func Conflict(format string, args ...any) error    { return newf(KindConflict, format, args...) }
func NotFound(format string, args ...any) error    { return newf(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) error   { return newf(KindForbidden, format, args...) }
func Overpayment(format string, args ...any) error { return newf(KindOverpayment, format, args...) }
func State(format string, args ...any) error       { return newf(KindState, format, args...) }

// Delivery wraps a collaborator failure (renderer, transport).
func Delivery(err error, format string, args ...any) error {
	return &Error{Kind: KindDelivery, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" for
// internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
