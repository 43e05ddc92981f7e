package workflow

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/docflow/internal/document"
)

// ErrValidation matches every input validation failure
var ErrValidation = errors.New("validation failed")

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }

// Validation failures, reported before any gateway call
var (
	ErrMissingOwner error = &validationError{"You must be signed in to process documents"}
	ErrNoAssets     error = &validationError{"Please select at least one image"}
	ErrNoFormats    error = &validationError{"Please select at least one output format"}
	ErrEmptyPrompt  error = &validationError{"Please enter a prompt"}
)

// Step names a stage of a job
type Step string

const (
	StepUpload  Step = "upload"
	StepCreate  Step = "create"
	StepProcess Step = "process"
	StepUpdate  Step = "update"
)

// StepError reports the stage at which a job failed
type StepError struct {
	Kind  document.Kind
	Step  Step
	Asset string
	Err   error
}

func (e *StepError) Error() string {
	if e.Asset != "" {
		return fmt.Sprintf("%s %s step failed for %s: %v", e.Kind, e.Step, e.Asset, e.Err)
	}
	return fmt.Sprintf("%s %s step failed: %v", e.Kind, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the acting user
func (e *StepError) Message() string {
	switch e.Step {
	case StepUpload:
		if e.Asset != "" {
			return "Failed to upload " + e.Asset
		}
		return "Failed to upload the attachment"
	case StepCreate:
		return "Failed to save the job record"
	case StepUpdate:
		return "Failed to update the job record"
	}
	if e.Kind == document.KindDocGen {
		return "Generation failed"
	}
	return "Processing failed"
}

// Message returns the user-facing text of any workflow error
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Message()
	}
	var ve *validationError
	if errors.As(err, &ve) {
		return ve.msg
	}
	return err.Error()
}
