package core

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrPermissionDenied is returned by services when the acting user is not allowed to perform an operation.
var ErrPermissionDenied = errors.New("permission denied")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, fe := range err.Fields {
		msgs = append(msgs, fe.Field+": "+fe.Error)
	}
	return strings.Join(msgs, "; ")
}

// IsValidationError reports whether the cause of err is a *ValidationError.
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

type fieldsError struct {
	err    error
	fields LogFields
}

// WithFields attaches fields to err so that they get reported when err is logged.
// errors.Cause sees through the returned error.
func WithFields(err error, fields LogFields) error {
	if err == nil {
		return nil
	}
	return &fieldsError{err: err, fields: fields}
}

func (fe *fieldsError) Error() string { return fe.err.Error() }
func (fe *fieldsError) Cause() error  { return fe.err }
func (fe *fieldsError) Unwrap() error { return fe.err }

// Format keeps the stack trace of the wrapped error printable with %+v.
func (fe *fieldsError) Format(s fmt.State, verb rune) {
	if f, ok := fe.err.(fmt.Formatter); ok {
		f.Format(s, verb)
		return
	}
	_, _ = io.WriteString(s, fe.err.Error())
}

// FieldsOf collects the fields attached anywhere in err's chain. Outer values win.
func FieldsOf(err error) LogFields {
	res := make(LogFields)
	for err != nil {
		if fe, ok := err.(*fieldsError); ok {
			for k, v := range fe.fields {
				if _, set := res[k]; !set {
					res[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return res
}
