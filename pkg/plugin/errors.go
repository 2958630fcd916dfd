package plugin

import (
	"errors"
	"fmt"
)

// StopProcessingError aborts the enclosing operation.
type StopProcessingError struct {
	Message string
}

func (e *StopProcessingError) Error() string {
	return e.Message
}

// StopProcessing builds a StopProcessingError.
func StopProcessing(format string, args ...any) error {
	return &StopProcessingError{Message: fmt.Sprintf(format, args...)}
}

// IsStopProcessing reports whether err carries a StopProcessingError.
func IsStopProcessing(err error) bool {
	var stop *StopProcessingError
	return errors.As(err, &stop)
}

// ExecutionError is a plugin failure that does not have to stop the
// operation.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func ExecutionFailure(msg string, err error) error {
	return &ExecutionError{Message: msg, Err: err}
}
