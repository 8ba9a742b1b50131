// Package apperr defines the closed set of failures the batch lifecycle can report.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation"
	KindPersistence  Kind = "persistence"
	KindPartialItem  Kind = "partial_item"
)

// Sentinels usable with errors.Is; they match any Error of the same kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrPersistence  = &Error{Kind: KindPersistence}
	ErrPartialItem  = &Error{Kind: KindPartialItem}
)

// Error carries a kind plus the operation and entity reference it failed on.
type Error struct {
	Kind    Kind
	Op      string
	Ref     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Ref != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Ref, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Ref == "" && t.Message == "" && t.Err == nil
}

// NotFound reports an absent or tombstoned entity.
func NotFound(op, ref, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Ref: ref, Message: message}
}

// InvalidState reports an operation the current lifecycle state forbids.
func InvalidState(op, ref, message string) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Ref: ref, Message: message}
}

// Validation reports bad input.
func Validation(op, ref, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Ref: ref, Message: message}
}

// Persistence wraps a registry read/write failure.
func Persistence(op, ref string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Ref: ref, Err: err}
}

// PartialItem marks one failed entry inside a bulk run.
func PartialItem(op, ref string, err error) *Error {
	return &Error{Kind: KindPartialItem, Op: op, Ref: ref, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Describe returns the human message of err without the op/ref prefix when available.
func Describe(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		if appErr.Err != nil {
			return Describe(appErr.Err)
		}
		return string(appErr.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// CauseKind returns the kind of the failure wrapped by a partial item error, falling
// back to KindOf(err).
func CauseKind(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind == KindPartialItem && appErr.Err != nil {
		if kind := KindOf(appErr.Err); kind != "" {
			return kind
		}
	}
	return KindOf(err)
}
