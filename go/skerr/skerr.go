// Package skerr provides error constructors that attach a call-site stack
// frame to errors as they cross a component boundary, so a log line at the
// top of the stack still shows where the error actually originated.
package skerr

import (
	"errors"
	"fmt"

	"go.capitolfeed.build/go/sklog"
)

// stackError wraps an error with the file:line of the call that created it.
type stackError struct {
	site string
	err  error
}

func (e *stackError) Error() string {
	return fmt.Sprintf("%s: %s", e.site, e.err.Error())
}

func (e *stackError) Unwrap() error {
	return e.err
}

// Wrap annotates err with the caller's file:line. Returns nil if err is nil,
// so it is safe to write `return skerr.Wrap(err)` unconditionally.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &stackError{site: sklog.CallSite(2), err: err}
}

// Wrapf annotates err with the caller's file:line and an additional message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &stackError{site: sklog.CallSite(2), err: fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)}
}

// Fmt creates a new error, annotated with the caller's file:line, from a
// format string. Use it instead of fmt.Errorf at component boundaries.
func Fmt(format string, args ...interface{}) error {
	return &stackError{site: sklog.CallSite(2), err: fmt.Errorf(format, args...)}
}

// Is is errors.Is, re-exported so callers only need to import skerr.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As, re-exported so callers only need to import skerr.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
