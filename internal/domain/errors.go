package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Store-level outcomes. Adapters return these (optionally wrapped) so callers can
// tell a lost compare-and-swap apart from a record that does not exist.
var (
	ErrNotFound        = errors.New("not found")
	ErrConditionFailed = errors.New("conditional write rejected")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindStateConflict
	KindInsufficientCapacity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindInsufficientCapacity:
		return "insufficient_capacity"
	default:
		return "internal"
	}
}

// Status returns the HTTP status class for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict, KindInsufficientCapacity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error returned by the app layer.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err. Bare store sentinels map to their natural kind,
// anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConditionFailed):
		return KindStateConflict
	}
	return KindInternal
}

// IsKind is shorthand for KindOf(err) == k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
