package processing

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/docflow/internal/document"
)

// Stub is a deterministic Processor with configurable latency and outcome
type Stub struct {
	Latency time.Duration
	// Err, when set, fails every call
	Err error
	// Override, when set, replaces the mock outputs
	Override *Result

	mu    sync.Mutex
	calls int
}

// NewStub returns a Stub that succeeds with the mock outputs after latency
func NewStub(latency time.Duration) *Stub {
	return &Stub{Latency: latency}
}

// Calls returns how many calls were made
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Stub) OCR(ctx context.Context, _ string, formats document.OutputFormats) (*Result, error) {
	if err := s.wait(ctx, opOCR); err != nil {
		return nil, err
	}
	if s.Override != nil {
		r := *s.Override
		return &r, nil
	}

	mock := MockOCR(formats)
	result := &Result{Text: mock.ExtractedText}
	if mock.DocxURL != nil {
		result.DocxURL = *mock.DocxURL
	}
	if mock.PDFURL != nil {
		result.PDFURL = *mock.PDFURL
	}
	return result, nil
}

func (s *Stub) Generate(ctx context.Context, prompt, _ string) (*Result, error) {
	if err := s.wait(ctx, opDocGen); err != nil {
		return nil, err
	}
	if s.Override != nil {
		r := *s.Override
		return &r, nil
	}

	mock := MockDocGen(prompt)
	return &Result{Text: mock.GeneratedContent, DocxURL: mock.DocxURL, PDFURL: mock.PDFURL}, nil
}

func (s *Stub) wait(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return &ProcessingError{Operation: op, Err: ctx.Err()}
		}
	} else if err := ctx.Err(); err != nil {
		return &ProcessingError{Operation: op, Err: err}
	}

	if s.Err != nil {
		return &ProcessingError{Operation: op, Err: s.Err}
	}
	return nil
}
