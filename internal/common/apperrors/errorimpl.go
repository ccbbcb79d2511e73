package apperrors

import (
	"errors"
	"strings"
)

type appError struct {
	msg           string
	details       string
	base          error
	wrappedErrors []error
	statuscode    int
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll joins the message with the messages of all wrapped errors, skipping the
// template chain so the same text is not repeated.
func (e *appError) ErrorAll() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrappedErrors {
		if e.inBaseChain(err) {
			continue
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) inBaseChain(err error) bool {
	for b := e.base; b != nil; {
		if b == err {
			return true
		}
		ae, ok := b.(*appError)
		if !ok {
			return false
		}
		b = ae.base
	}
	return false
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		details:       e.details,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		statuscode:    e.statuscode,
	}
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:           msg,
		details:       e.details,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:           e.msg,
		details:       e.details,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

// WithDetails returns a derived error carrying details. The receiver stays in the
// chain so errors.Is still matches it.
func (e *appError) WithDetails(details string) Error {
	return &appError{
		msg:           e.msg,
		details:       details,
		base:          e,
		wrappedErrors: e.wrappedErrors,
		statuscode:    e.statuscode,
	}
}

func (e *appError) Details() string {
	return e.details
}

func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

// New creates a root error with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is matches target against the base chain and every wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
