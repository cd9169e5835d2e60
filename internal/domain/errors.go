package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Adapter-level sentinels. Repositories return these; the core maps them.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindBadRequest
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status is the HTTP status hint for the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error raised by the auth core.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Msg: msg} }
func BadRequest(msg string) *Error   { return &Error{Kind: KindBadRequest, Msg: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Msg: msg} }

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func StatusOf(err error) int { return KindOf(err).Status() }
