// Package apperr classifies failures so HTTP handlers can map them to status codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	// KindInvalid is a malformed or rejected client request.
	KindInvalid
	// KindConfig is a required credential or identifier missing at the time it is needed.
	KindConfig
	// KindUpstream is a failure reported by the spreadsheet store or the payment gateway.
	KindUpstream
	KindTooLarge
)

// Error carries a Kind and a caller-facing message. Err, when set, is the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Invalid(msg string) error { return &Error{Kind: KindInvalid, Msg: msg} }

func Config(msg string) error { return &Error{Kind: KindConfig, Msg: msg} }

// Upstream wraps a remote failure. An empty msg keeps the upstream message verbatim.
func Upstream(msg string, err error) error { return &Error{Kind: KindUpstream, Msg: msg, Err: err} }

func TooLarge(msg string) error { return &Error{Kind: KindTooLarge, Msg: msg} }

// KindOf reports the Kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
