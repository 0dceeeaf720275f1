// Package errs defines the error taxonomy shared by every ledger component.
//
// Each error carries a Kind that callers branch on with errors.Is against the
// kind sentinels (ErrValidation, ErrNotFound, ErrConflict, ErrConsistency) and a
// stable snake_case Code that is safe to return to API clients.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindConsistency Kind = "consistency"
)

// Error is a typed domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Code
	if e.Message != "" {
		msg = e.Code + ": " + e.Message
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels by kind and domain sentinels by kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Kind sentinels. Match with errors.Is(err, errs.ErrConflict).
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrConsistency = &Error{Kind: KindConsistency}
)

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Consistency(code, message string) *Error {
	return &Error{Kind: KindConsistency, Code: code, Message: message}
}

// With returns a copy of a sentinel with a formatted detail message. The copy
// still matches the sentinel under errors.Is.
func (e *Error) With(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of a sentinel wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// KindOf reports the kind of err, or "" when err is not a typed domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

// CodeOf reports the code of err, or "" when err is not a typed domain error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}
