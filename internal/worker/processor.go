package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/worker/domain"
)

// processMessage moves the record named by msg to failed
func (w *Worker) processMessage(ctx context.Context, msg *domain.FinalizeMessage) error {
	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	reason := msg.Payload.Reason
	if reason == "" {
		reason = domain.ReasonUnknown
	}

	w.logger.Info("Finalizing document",
		slog.String("document_id", msg.DocumentID()),
		slog.String("event_id", msg.EventID),
		slog.Int("attempt", msg.Payload.Attempt),
	)

	rec, err := w.records.Update(jobCtx, msg.DocumentID(), document.Failed(reason))
	switch {
	case err == nil:
		w.logger.Info("Document marked as failed",
			slog.String("document_id", rec.ID),
		)
		w.announceFailed(jobCtx, events.Payload{
			DocumentID: rec.ID,
			OwnerID:    rec.UserID,
			Kind:       rec.Kind,
			Status:     rec.Status,
			Reason:     reason,
		})
		return nil

	case errors.Is(err, document.ErrInvalidTransition), errors.Is(err, document.ErrRecordNotFound):
		// already terminal or deleted, nothing left to do
		w.logger.Info("Document needs no finalization",
			slog.String("document_id", msg.DocumentID()),
			slog.String("reason", err.Error()),
		)
		return nil

	case errors.Is(err, document.ErrPersistence):
		return domain.NewRetryableError(fmt.Errorf("failed to finalize document: %w", err))
	}

	return fmt.Errorf("failed to finalize document: %w", err)
}

func (w *Worker) announceFailed(ctx context.Context, payload events.Payload) {
	if err := w.publisher.Publish(ctx, events.TypeFailed, payload); err != nil {
		w.logger.Warn("Failed to publish event",
			slog.String("type", events.TypeFailed),
			slog.String("document_id", payload.DocumentID),
			slog.String("error", err.Error()),
		)
	}
}
