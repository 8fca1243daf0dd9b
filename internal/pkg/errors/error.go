package xerrors

import (
	"errors"
	"net/http"
)

// Kind classifies an application error. Handlers and middleware branch on the
// kind, never on the message.
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindExpired
	KindMismatch
	KindUnauthorized
	KindForbidden
	KindStoreUnavailable
	KindRateLimited
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindMismatch:
		return "mismatch"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the typed application error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "otp.VerifyCode"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, ErrExpired) matches any
// expired error regardless of op or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Common reusable application errors
var (
	ErrNotFound         = &Error{Kind: KindNotFound, Msg: "resource not found"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Msg: "unauthorized access"}
	ErrForbidden        = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Msg: "invalid input"}
	ErrExpired          = &Error{Kind: KindExpired, Msg: "expired"}
	ErrMismatch         = &Error{Kind: KindMismatch, Msg: "mismatch"}
	ErrConflict         = &Error{Kind: KindConflict, Msg: "conflict: resource already exists"}
	ErrInternal         = &Error{Kind: KindInternal, Msg: "internal server error"}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Msg: "too many requests"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Msg: "store unavailable"}
)

// New builds an error of the given kind.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// E wraps err with a kind. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code the API answers with. Expired and
// Mismatch share 400 so a client cannot tell which check failed.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput, KindExpired, KindMismatch:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
