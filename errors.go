package runweave

import (
	"errors"
	"fmt"
)

// RuntimeError represents an engine-level failure: manifest validation,
// run-folder allocation, interpreter launch problems and the like. The CLI
// maps it to exit code 2.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err as a RuntimeError. Returns nil if err is nil.
func NewRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	return &RuntimeError{Err: err}
}

// TestFailureError indicates the run itself completed but one or more test
// cases did not pass. The CLI maps it to exit code 1.
type TestFailureError struct {
	Msg string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Msg)
}

// NewTestFailureError creates a TestFailureError with the given message.
func NewTestFailureError(msg string) *TestFailureError {
	return &TestFailureError{Msg: msg}
}

// IsRuntimeError reports whether err is (or wraps) a RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// IsTestFailureError reports whether err is (or wraps) a TestFailureError.
func IsTestFailureError(err error) bool {
	var te *TestFailureError
	return errors.As(err, &te)
}
