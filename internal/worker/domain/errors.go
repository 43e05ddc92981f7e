package domain

import "errors"

var (
	// ErrInvalidPayload is returned when a message cannot be decoded
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrUnexpectedType is returned for events the worker does not handle
	ErrUnexpectedType = errors.New("unexpected event type")
)

// RetryableError wraps transient errors that should trigger a retry
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
