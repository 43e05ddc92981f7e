// Package workflow orchestrates OCR and document-generation jobs:
// upload, record creation, processing and the final record update.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/processing"
	"github.com/cuongbtq/docflow/internal/upload"
)

// RecordStore persists Job Records
type RecordStore interface {
	Create(ctx context.Context, in document.NewRecord) (*document.Record, error)
	Update(ctx context.Context, id string, patch document.Patch) (*document.Record, error)
}

// Uploader stores assets and returns their path
type Uploader interface {
	Upload(ctx context.Context, ownerID string, f upload.File) (string, error)
}

// Publisher emits lifecycle events
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload events.Payload) error
}

// Config wires a Service
type Config struct {
	Records   RecordStore
	Uploader  Uploader
	Processor processing.Processor
	Publisher Publisher
	Logger    *slog.Logger

	// Concurrency 1 processes assets sequentially and stops at the first failure
	Concurrency       int
	ProcessingTimeout time.Duration
	FinalizeTimeout   time.Duration
}

// Service runs jobs
type Service struct {
	records           RecordStore
	uploader          Uploader
	processor         processing.Processor
	publisher         Publisher
	logger            *slog.Logger
	concurrency       int
	processingTimeout time.Duration
	finalizeTimeout   time.Duration
}

// NewService creates a new Service
func NewService(cfg Config) *Service {
	s := &Service{
		records:           cfg.Records,
		uploader:          cfg.Uploader,
		processor:         cfg.Processor,
		publisher:         cfg.Publisher,
		logger:            cfg.Logger,
		concurrency:       cfg.Concurrency,
		processingTimeout: cfg.ProcessingTimeout,
		finalizeTimeout:   cfg.FinalizeTimeout,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.finalizeTimeout <= 0 {
		s.finalizeTimeout = 10 * time.Second
	}
	return s
}

// OCRInput is one OCR request covering several assets
type OCRInput struct {
	OwnerID string
	Assets  []upload.File
	Formats document.OutputFormats
}

// AssetOutcome is the result for one asset. Err is set when the asset failed.
type AssetOutcome struct {
	FileName   string
	DocumentID string
	SourcePath string
	Status     document.Status
	Text       string
	DocxPath   string
	PDFPath    string
	DocxURL    string
	PDFURL     string
	Err        error
}

// RunOCR processes every asset. With concurrency 1 assets run in order and
// the first failure ends the run, so the outcomes stop at the failed asset.
// With higher concurrency every asset runs independently and outcomes keep
// input order. The returned error joins all asset failures.
func (s *Service) RunOCR(ctx context.Context, in OCRInput) ([]AssetOutcome, error) {
	switch {
	case in.OwnerID == "":
		return nil, ErrMissingOwner
	case len(in.Assets) == 0:
		return nil, ErrNoAssets
	case !in.Formats.Any():
		return nil, ErrNoFormats
	}

	if s.concurrency == 1 || len(in.Assets) == 1 {
		return s.runSequential(ctx, in)
	}
	return s.runConcurrent(ctx, in)
}

func (s *Service) runSequential(ctx context.Context, in OCRInput) ([]AssetOutcome, error) {
	outcomes := make([]AssetOutcome, 0, len(in.Assets))
	for _, asset := range in.Assets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		outcome := s.runAsset(ctx, in.OwnerID, asset, in.Formats)
		outcomes = append(outcomes, outcome)
		if outcome.Err != nil {
			s.logger.Warn("Aborting remaining assets after failure",
				slog.String("file", outcome.FileName),
				slog.Int("remaining", len(in.Assets)-len(outcomes)),
			)
			return outcomes, outcome.Err
		}
	}
	return outcomes, nil
}

func (s *Service) runConcurrent(ctx context.Context, in OCRInput) ([]AssetOutcome, error) {
	outcomes := make([]AssetOutcome, len(in.Assets))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, asset := range in.Assets {
		g.Go(func() error {
			outcomes[i] = s.runAsset(ctx, in.OwnerID, asset, in.Formats)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return outcomes, errors.Join(errs...)
}

func (s *Service) runAsset(ctx context.Context, ownerID string, asset upload.File, formats document.OutputFormats) AssetOutcome {
	started := time.Now()
	outcome := AssetOutcome{FileName: asset.Name}
	stepErr := func(step Step, err error) error {
		return &StepError{Kind: document.KindOCR, Step: step, Asset: asset.Name, Err: err}
	}

	sourcePath, err := s.uploader.Upload(ctx, ownerID, asset)
	if err != nil {
		outcome.Err = stepErr(StepUpload, err)
		observeJob(string(document.KindOCR), "rejected", started)
		return outcome
	}
	outcome.SourcePath = sourcePath

	rec, err := s.records.Create(ctx, document.NewRecord{
		OwnerID:    ownerID,
		Kind:       document.KindOCR,
		SourcePath: sourcePath,
	})
	if err != nil {
		outcome.Err = stepErr(StepCreate, err)
		observeJob(string(document.KindOCR), "rejected", started)
		return outcome
	}
	outcome.DocumentID = rec.ID
	outcome.Status = rec.Status
	s.publish(ctx, events.TypeCreated, payloadOf(rec))

	result, err := s.process(ctx, func(pctx context.Context) (*processing.Result, error) {
		return s.processor.OCR(pctx, sourcePath, formats)
	})
	if err != nil {
		outcome.Status = s.finalizeFailed(ctx, rec, err, started)
		outcome.Err = stepErr(StepProcess, err)
		return outcome
	}

	patch := document.Patch{
		Status:   document.StatusCompleted,
		Metadata: document.Metadata{"source_file": asset.Name},
	}
	if formats.Docx {
		patch.DocxPath = document.OutputPath(ownerID, rec.ID, document.ExtDocx)
	}
	if formats.PDF {
		patch.PDFPath = document.OutputPath(ownerID, rec.ID, document.ExtPDF)
	}

	updated, err := s.records.Update(ctx, rec.ID, patch)
	if err != nil {
		outcome.Status = s.finalizeFailed(ctx, rec, err, started)
		outcome.Err = stepErr(StepUpdate, err)
		return outcome
	}

	outcome.Status = updated.Status
	outcome.Text = result.Text
	outcome.DocxPath = patch.DocxPath
	outcome.PDFPath = patch.PDFPath
	outcome.DocxURL = result.DocxURL
	outcome.PDFURL = result.PDFURL

	s.publish(ctx, events.TypeCompleted, payloadOf(updated))
	observeJob(string(document.KindOCR), string(document.StatusCompleted), started)

	s.logger.Info("OCR job completed",
		slog.String("document_id", rec.ID),
		slog.String("file", asset.Name),
		slog.Duration("duration", time.Since(started)),
	)
	return outcome
}

// DocGenInput is one document-generation request
type DocGenInput struct {
	OwnerID    string
	Prompt     string
	Attachment *upload.File
}

// DocGenOutcome is the result of a successful generation
type DocGenOutcome struct {
	DocumentID     string
	Status         document.Status
	Content        string
	AttachmentPath string
	DocxPath       string
	PDFPath        string
	DocxURL        string
	PDFURL         string
}

// RunDocGen generates a document from a prompt and an optional attachment
func (s *Service) RunDocGen(ctx context.Context, in DocGenInput) (*DocGenOutcome, error) {
	if in.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	started := time.Now()
	kind := string(document.KindDocGen)
	stepErr := func(step Step, err error) error {
		return &StepError{Kind: document.KindDocGen, Step: step, Err: err}
	}

	outcome := &DocGenOutcome{}
	if in.Attachment != nil {
		path, err := s.uploader.Upload(ctx, in.OwnerID, *in.Attachment)
		if err != nil {
			observeJob(kind, "rejected", started)
			return nil, stepErr(StepUpload, err)
		}
		outcome.AttachmentPath = path
	}

	rec, err := s.records.Create(ctx, document.NewRecord{
		OwnerID:    in.OwnerID,
		Kind:       document.KindDocGen,
		Prompt:     in.Prompt,
		SourcePath: outcome.AttachmentPath,
	})
	if err != nil {
		observeJob(kind, "rejected", started)
		return nil, stepErr(StepCreate, err)
	}
	outcome.DocumentID = rec.ID
	s.publish(ctx, events.TypeCreated, payloadOf(rec))

	result, err := s.process(ctx, func(pctx context.Context) (*processing.Result, error) {
		return s.processor.Generate(pctx, in.Prompt, outcome.AttachmentPath)
	})
	if err != nil {
		s.finalizeFailed(ctx, rec, err, started)
		return nil, stepErr(StepProcess, err)
	}

	patch := document.Patch{
		Status:   document.StatusCompleted,
		DocxPath: document.OutputPath(in.OwnerID, rec.ID, document.ExtDocx),
		PDFPath:  document.OutputPath(in.OwnerID, rec.ID, document.ExtPDF),
	}
	updated, err := s.records.Update(ctx, rec.ID, patch)
	if err != nil {
		s.finalizeFailed(ctx, rec, err, started)
		return nil, stepErr(StepUpdate, err)
	}

	outcome.Status = updated.Status
	outcome.Content = result.Text
	outcome.DocxPath = patch.DocxPath
	outcome.PDFPath = patch.PDFPath
	outcome.DocxURL = result.DocxURL
	outcome.PDFURL = result.PDFURL

	s.publish(ctx, events.TypeCompleted, payloadOf(updated))
	observeJob(kind, string(document.StatusCompleted), started)

	s.logger.Info("Document generation completed",
		slog.String("document_id", rec.ID),
		slog.Duration("duration", time.Since(started)),
	)
	return outcome, nil
}

func (s *Service) process(ctx context.Context, call func(context.Context) (*processing.Result, error)) (*processing.Result, error) {
	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}
	return call(ctx)
}

// finalizeFailed drives rec to failed. It runs detached from the caller's
// cancellation. When the update itself fails the record is handed to the
// worker through a finalize event. It returns the status the record is known
// to have.
func (s *Service) finalizeFailed(ctx context.Context, rec *document.Record, cause error, started time.Time) document.Status {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finalizeTimeout)
	defer cancel()

	reason := cause.Error()
	updated, err := s.records.Update(fctx, rec.ID, document.Failed(reason))
	switch {
	case err == nil:
		s.publish(fctx, events.TypeFailed, payloadOf(updated))
		observeJob(string(rec.Kind), string(document.StatusFailed), started)
		s.logger.Warn("Job failed",
			slog.String("document_id", rec.ID),
			slog.String("kind", string(rec.Kind)),
			slog.String("error", reason),
		)
		return document.StatusFailed

	case errors.Is(err, document.ErrInvalidTransition), errors.Is(err, document.ErrRecordNotFound):
		s.logger.Warn("Record already finalized or removed",
			slog.String("document_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}

	finalizeFailuresTotal.Inc()
	s.logger.Error("Failed to mark record as failed, handing over to worker",
		slog.String("document_id", rec.ID),
		slog.String("error", err.Error()),
		slog.String("cause", reason),
	)

	payload := payloadOf(rec)
	payload.Status = document.StatusFailed
	payload.Reason = reason
	if perr := s.publisher.Publish(fctx, events.TypeFinalize, payload); perr != nil {
		s.logger.Error("Failed to publish finalize event, record is left for the stale sweeper",
			slog.String("document_id", rec.ID),
			slog.String("error", perr.Error()),
		)
	}
	return document.StatusProcessing
}

func (s *Service) publish(ctx context.Context, eventType string, payload events.Payload) {
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn("Failed to publish event",
			slog.String("type", eventType),
			slog.String("document_id", payload.DocumentID),
			slog.String("error", err.Error()),
		)
	}
}

func payloadOf(rec *document.Record) events.Payload {
	return events.Payload{
		DocumentID: rec.ID,
		OwnerID:    rec.UserID,
		Kind:       rec.Kind,
		Status:     rec.Status,
		DocxPath:   document.Deref(rec.DocxPath),
		PDFPath:    document.Deref(rec.PDFPath),
	}
}
