package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

type codedError struct {
	code  ErrorCode
	msg   string
	cause error
	data  any
}

// Error renders "message[: data][: cause]", where message falls back to
// the text registered for the code.
func (e *codedError) Error() string {
	var b strings.Builder
	if e.msg != "" {
		b.WriteString(e.msg)
	} else {
		b.WriteString(GetErrorMessage(e.code))
	}
	if e.data != nil {
		fmt.Fprintf(&b, ": %v", e.data)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *codedError) Code() ErrorCode { return e.code }
func (e *codedError) GetData() any    { return e.data }
func (e *codedError) Unwrap() error   { return e.cause }

func (e *codedError) WithMessage(msg string) Error {
	c := *e
	c.msg = msg
	return &c
}

func (e *codedError) WithData(data any) Error {
	c := *e
	c.data = data
	return &c
}

// Is reports a match for any coded error with the same code.
func (e *codedError) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code() == e.code
}

type factory struct{}

// New returns the Factory used throughout the daemon.
func New() Factory { return factory{} }

func (factory) New(code ErrorCode) Error { return &codedError{code: code} }

func (factory) Wrap(code ErrorCode, err error) Error {
	return &codedError{code: code, cause: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &codedError{code: code, msg: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &codedError{code: code, data: data}
}

// HasCode reports whether code appears anywhere in err's chain.
func HasCode(err error, code ErrorCode) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if ce, ok := err.(Error); ok && ce.Code() == code {
			return true
		}
	}
	return false
}
