package processing

import (
	"errors"
	"fmt"
)

// ErrProcessing matches every *ProcessingError
var ErrProcessing = errors.New("processing failed")

// ProcessingError reports a failed call or a success:false response
type ProcessingError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProcessingError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s processing failed (status %d): %s", e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s processing failed: %s", e.Operation, msg)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrProcessing) true
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

// transientError marks failures worth another attempt
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
