package store

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a store failure.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodePermissionDenied Code = "permission_denied"
	CodeUnavailable      Code = "unavailable"
	CodeTimeout          Code = "timeout"
	CodeInvalid          Code = "invalid"
)

// Error is returned by every store adapter. Match it with errors.Is against
// the sentinel values below, or use CodeOf.
type Error struct {
	Code Code
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a store error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrUnavailable      = &Error{Code: CodeUnavailable}
	ErrTimeout          = &Error{Code: CodeTimeout}
	ErrInvalid          = &Error{Code: CodeInvalid}
)

// NewError builds a store error for an operation on a path.
func NewError(code Code, op, path string, cause error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: cause}
}

// CodeOf extracts the store code from err. Context errors map to timeout and
// anything unrecognised is treated as unavailable.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	return CodeUnavailable
}

// IsNotFound reports whether err is a NotFound store error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// wrapContext converts context errors into timeout store errors and leaves
// everything else alone.
func wrapContext(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(CodeTimeout, op, path, err)
	}
	return err
}
