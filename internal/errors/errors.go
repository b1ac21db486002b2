package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeInvalidArgument Code = iota + 1
	CodeNotFound
	CodeAlreadyExists
	CodeInsufficientFunds
	CodeUnauthenticated
	CodeUnavailable
	CodeInternal
)

var code2str = map[Code]string{
	CodeInvalidArgument:   "InvalidArgument",
	CodeNotFound:          "NotFound",
	CodeAlreadyExists:     "AlreadyExists",
	CodeInsufficientFunds: "InsufficientFunds",
	CodeUnauthenticated:   "Unauthenticated",
	CodeUnavailable:       "Unavailable",
	CodeInternal:          "Internal",
}

var code2http = map[Code]int{
	CodeInvalidArgument:   http.StatusBadRequest,
	CodeNotFound:          http.StatusNotFound,
	CodeAlreadyExists:     http.StatusConflict,
	CodeInsufficientFunds: http.StatusPaymentRequired,
	CodeUnauthenticated:   http.StatusUnauthorized,
	CodeUnavailable:       http.StatusServiceUnavailable,
	CodeInternal:          http.StatusInternalServerError,
}

func (c Code) String() string {
	if s, ok := code2str[c]; ok {
		return s
	}

	return fmt.Sprintf("Code(%d)", int(c))
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: code.String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as an *Error, wrapping unknown errors as CodeInternal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// FromHTTPStatus maps a backend response status to an error code.
// Client-side transport failures are not status codes and map to
// CodeUnavailable at the call site instead.
func FromHTTPStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	case http.StatusPaymentRequired:
		return CodeInsufficientFunds
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeAlreadyExists
	case http.StatusBadRequest:
		return CodeInvalidArgument
	}

	if status >= 500 {
		return CodeInternal
	}

	return CodeInvalidArgument
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
