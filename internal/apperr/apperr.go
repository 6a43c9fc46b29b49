// Package apperr defines the error kinds the bot distinguishes when it
// decides what, if anything, to tell the user.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad extensions, undecodable uploads and malformed text input.
	KindValidation
	// KindCapacity covers files or batches beyond the configured ceilings.
	KindCapacity
	// KindRaceNoop marks stale timers, duplicate finalizes and unchanged edits.
	KindRaceNoop
	// KindStateMismatch is follow-up input with nothing waiting for it.
	KindStateMismatch
	// KindTransport is a send or edit failure that survived the fallback.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindRaceNoop:
		return "race_noop"
	case KindStateMismatch:
		return "state_mismatch"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error carries a kind, a stable code for logs and a user-facing message.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRaceNoop) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == "" && t.Kind == e.Kind
}

// ErrCode feeds the err_code field of handler logs.
func (e *Error) ErrCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.String()
}

// Rejected reports whether the failure is an answered user mistake rather
// than a fault; handler logs count those as rejected.
func (e *Error) Rejected() bool {
	switch e.Kind {
	case KindValidation, KindCapacity, KindStateMismatch:
		return true
	}
	return false
}

// ErrRaceNoop is returned for events that lost a race and must be ignored.
var ErrRaceNoop = &Error{Kind: KindRaceNoop}

// Validation builds a KindValidation error with a user-facing message.
func Validation(code, msg string) error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

// Capacity builds a KindCapacity error with a user-facing message.
func Capacity(code, msg string) error {
	return &Error{Kind: KindCapacity, Code: code, Msg: msg}
}

// StateMismatch builds a KindStateMismatch error.
func StateMismatch(msg string) error {
	return &Error{Kind: KindStateMismatch, Code: "state_mismatch", Msg: msg}
}

// Transport wraps a delivery failure.
func Transport(code string, err error) error {
	return &Error{Kind: KindTransport, Code: code, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the user-facing text of err, or "" when it has none.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}

// UserVisible reports whether err should be shown to the user inline.
func UserVisible(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindCapacity, KindStateMismatch:
		return Message(err) != ""
	}
	return false
}
