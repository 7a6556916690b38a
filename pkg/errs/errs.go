// Package errs defines the error kinds shared by every billing domain.
//
// Domain packages declare their sentinels with one of the constructors below,
// e.g. ErrInvoiceNotFound = errs.NotFound("invoice_not_found"). Callers can then
// match either the exact sentinel or the whole kind:
//
//	errors.Is(err, invoicedomain.ErrInvoiceNotFound)
//	errors.Is(err, errs.ErrNotFound)
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindInvariantViolation Kind = "invariant_violation"
	KindInternal           Kind = "internal_error"
)

// Kind sentinels. Matching against one of these matches every error of that kind.
var (
	ErrValidation         = &Error{Kind: KindValidation, Code: string(KindValidation)}
	ErrNotFound           = &Error{Kind: KindNotFound, Code: string(KindNotFound)}
	ErrForbidden          = &Error{Kind: KindForbidden, Code: string(KindForbidden)}
	ErrConflict           = &Error{Kind: KindConflict, Code: string(KindConflict)}
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation, Code: string(KindInvariantViolation)}
	ErrInternal           = &Error{Kind: KindInternal, Code: string(KindInternal)}
)

type Error struct {
	Kind  Kind
	Code  string
	Field string
	// Fields holds per-field validation details keyed by request field name.
	Fields map[string]string
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.Code + ": " + e.msg
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports a match when target is the same sentinel, or when target is a
// kind sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	if t.Code == string(t.Kind) {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Message returns the human readable part, falling back to the code.
func (e *Error) Message() string {
	if e.msg != "" {
		return e.msg
	}
	return e.Code
}

// WithMessage returns a copy carrying a detail message. The copy still
// matches the original sentinel with errors.Is.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.msg = fmt.Sprintf(format, args...)
	return &cp
}

// WithFields returns a copy carrying per-field details.
func (e *Error) WithFields(fields map[string]string) *Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

// Wrap returns a copy that unwraps to cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func Validation(code string) *Error { return newError(KindValidation, code) }

// ValidationField builds a validation sentinel bound to a request field.
func ValidationField(field, code string) *Error {
	e := newError(KindValidation, code)
	e.Field = field
	return e
}

func NotFound(code string) *Error           { return newError(KindNotFound, code) }
func Forbidden(code string) *Error          { return newError(KindForbidden, code) }
func Conflict(code string) *Error           { return newError(KindConflict, code) }
func InvariantViolation(code string) *Error { return newError(KindInvariantViolation, code) }

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}
