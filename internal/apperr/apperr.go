package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state"
	KindTransport  Kind = "transport"
	KindInternal   Kind = "internal"
)

// Error is a classified error. Sentinels are compared by pointer, so
// errors.Is works on the values declared by each package.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindState:
		return http.StatusUnprocessableEntity
	case KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(code, msg string) *Error { return &Error{Kind: KindValidation, Code: code, Msg: msg} }
func NotFound(code, msg string) *Error   { return &Error{Kind: KindNotFound, Code: code, Msg: msg} }
func Conflict(code, msg string) *Error   { return &Error{Kind: KindConflict, Code: code, Msg: msg} }
func State(code, msg string) *Error      { return &Error{Kind: KindState, Code: code, Msg: msg} }
func Transport(code, msg string) *Error  { return &Error{Kind: KindTransport, Code: code, Msg: msg} }

var ErrBadRequest = Validation("bad_request", "malformed request")

// KindOf reports the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// Message hides the text of unclassified errors from clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}
