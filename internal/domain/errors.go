package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindAuthorization ErrorKind = "authorization"
)

const (
	CodeInvalidInput             = "InvalidInput"
	CodeNoAvailabilityConfigured = "NoAvailabilityConfigured"
	CodeOutsideAvailability      = "OutsideAvailability"
	CodeSlotTaken                = "SlotTaken"
	CodeIllegalTransition        = "IllegalTransition"
	CodeNotFound                 = "NotFound"
	CodeForbidden                = "Forbidden"
	CodeIdempotencyKeyReused     = "IdempotencyKeyReused"
)

// Error is the error type returned by every core operation. Kind is the coarse
// class a transport maps to a status code; Code is stable and machine readable.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind and Code so sentinels work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrNoAvailabilityConfigured = &Error{Kind: KindValidation, Code: CodeNoAvailabilityConfigured, Message: "provider has no availability configured"}
	ErrOutsideAvailability      = &Error{Kind: KindConflict, Code: CodeOutsideAvailability, Message: "requested time is outside provider availability"}
	ErrSlotTaken                = &Error{Kind: KindConflict, Code: CodeSlotTaken, Message: "time slot already booked"}
	ErrIllegalTransition        = &Error{Kind: KindValidation, Code: CodeIllegalTransition, Message: "illegal status transition"}
	ErrForbidden                = &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: "access denied"}
	ErrIdempotencyKeyReused     = &Error{Kind: KindConflict, Code: CodeIdempotencyKeyReused, Message: "idempotency key already used for a different booking"}
)

func ValidationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(what string) error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found"}
}

func AuthorizationError(msg string) error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: msg}
}

func illegalTransition(from, to Status) error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeIllegalTransition,
		Message: fmt.Sprintf("cannot change status from %s to %s", from, to),
	}
}

// KindOf returns the kind of a core error, or "" for anything else (storage failures).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
