// Package apperr defines the error taxonomy surfaced at service boundaries.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindExpired         Kind = "expired"
	KindAlreadyAccepted Kind = "already_accepted"
	KindForbidden       Kind = "forbidden"
	KindUnauthorized    Kind = "unauthorized"
	KindValidation      Kind = "validation_error"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error carries a kind, a message that is safe to return to callers and an
// optional cause that is only logged.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons. They match every error of their kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrExpired         = &Error{Kind: KindExpired}
	ErrAlreadyAccepted = &Error{Kind: KindAlreadyAccepted}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
)

// Unauthorized is the single credential failure returned for unknown
// accounts, inactive accounts and wrong secrets alike.
func Unauthorized() *Error {
	return New(KindUnauthorized, "invalid credentials")
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Forbidden() *Error {
	return New(KindForbidden, "access denied")
}

func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// KindOf extracts the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
