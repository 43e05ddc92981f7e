package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/guard"
)

const (
	opOCR    = "ocr"
	opDocGen = "docgen"

	maxResponseBytes = 1 << 20
)

// HTTPConfig configures the HTTP processor
type HTTPConfig struct {
	OCRURL        string
	DocGenURL     string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// HTTPProcessor calls the processing functions over HTTP
type HTTPProcessor struct {
	config HTTPConfig
	guard  *guard.Guard
	client *http.Client
	logger *slog.Logger
}

// NewHTTPProcessor creates a new HTTPProcessor. A nil client uses http.DefaultClient.
func NewHTTPProcessor(config HTTPConfig, g *guard.Guard, client *http.Client, logger *slog.Logger) *HTTPProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 1
	}
	return &HTTPProcessor{
		config: config,
		guard:  g,
		client: client,
		logger: logger,
	}
}

// OCR converts the image at sourcePath into the requested formats
func (p *HTTPProcessor) OCR(ctx context.Context, sourcePath string, formats document.OutputFormats) (*Result, error) {
	var resp OCRResponse
	req := OCRRequest{ImagePath: sourcePath, Formats: formats}
	if err := p.call(ctx, opOCR, p.config.OCRURL, req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &ProcessingError{Operation: opOCR, Message: "function reported success=false"}
	}

	result := &Result{Text: resp.ExtractedText}
	if resp.DocxURL != nil {
		result.DocxURL = *resp.DocxURL
	}
	if resp.PDFURL != nil {
		result.PDFURL = *resp.PDFURL
	}

	if formats.Docx && result.DocxURL == "" {
		return nil, &ProcessingError{Operation: opOCR, Message: "requested docx output is missing"}
	}
	if formats.PDF && result.PDFURL == "" {
		return nil, &ProcessingError{Operation: opOCR, Message: "requested pdf output is missing"}
	}

	return result, nil
}

// Generate produces a document from prompt and an optional reference asset
func (p *HTTPProcessor) Generate(ctx context.Context, prompt, attachmentPath string) (*Result, error) {
	var resp DocGenResponse
	req := DocGenRequest{Prompt: prompt, AttachmentPath: attachmentPath}
	if err := p.call(ctx, opDocGen, p.config.DocGenURL, req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &ProcessingError{Operation: opDocGen, Message: "function reported success=false"}
	}

	return &Result{
		Text:    resp.GeneratedContent,
		DocxURL: resp.DocxURL,
		PDFURL:  resp.PDFURL,
	}, nil
}

func (p *HTTPProcessor) call(ctx context.Context, op, url string, in, out any) error {
	if err := p.guard.Check(); err != nil {
		return err
	}
	if url == "" {
		return &ProcessingError{Operation: op, Message: "endpoint is not configured"}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	err = retry.Do(
		func() error {
			return p.post(ctx, op, url, body, out)
		},
		retry.Context(ctx),
		retry.Attempts(p.config.RetryAttempts),
		retry.Delay(p.config.RetryDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Warn("Processing call failed, retrying",
				slog.String("operation", op),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err == nil {
		return nil
	}

	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProcessingError{Operation: op, Err: err}
}

func (p *HTTPProcessor) post(ctx context.Context, op, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.guard.AccessKey())
	req.Header.Set("apikey", p.guard.AccessKey())

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		perr := &ProcessingError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.Status),
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return &transientError{err: perr}
		}
		return perr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ProcessingError{Operation: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func errorMessage(body []byte, fallback string) string {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 256 {
		return s
	}
	return fallback
}
