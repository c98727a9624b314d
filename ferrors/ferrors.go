// Package ferrors defines the error taxonomy for the firmata client:
// ArgumentRange, ArgumentNull, Timeout, Unauthorized, TransportIO,
// FrameOverflow and Unsupported, each a stable, comparable Code with an
// optional wrapped cause.
package ferrors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Code is a stable, comparable error identifier. It implements error so a
// bare Code can be returned and compared with errors.Is.
type Code string

func (c Code) Error() string { return string(c) }

const (
	ArgumentRange Code = "argument_range"
	ArgumentNull  Code = "argument_null"
	Timeout       Code = "timeout"
	Unauthorized  Code = "unauthorized"
	TransportIO   Code = "transport_io"
	FrameOverflow Code = "frame_overflow"
	Unsupported   Code = "unsupported"
)

// E wraps a Code with context and, optionally, the underlying cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := e.Op
	if s != "" {
		s += ": "
	}
	s += string(e.C)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the cause to errors.Is/errors.As, and the Code itself acts
// as the sentinel: errors.Is(err, ferrors.Timeout) succeeds for any *E whose
// C is Timeout via the chained Is below.
func (e *E) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeCode) match an *E carrying that code.
func (e *E) Is(target error) bool {
	code, ok := target.(Code)
	return ok && e.C == code
}

// New builds an *E with the given code, operation name and message.
func New(code Code, op, msg string) error {
	return &E{C: code, Op: op, Msg: msg}
}

// Wrap attaches code/op context to a lower-level cause, preserving it for
// errors.As and printing a full causal chain via github.com/pkg/errors.
func Wrap(code Code, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &E{C: code, Op: op, Err: pkgerrors.WithStack(cause)}
}

// CodeOf extracts the Code from err, defaulting to "" if err does not carry
// one of the taxonomy codes.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.C
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return ""
}
