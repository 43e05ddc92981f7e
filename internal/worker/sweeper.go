package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/worker/domain"
)

// runSweeper periodically fails records stuck at processing
func (w *Worker) runSweeper(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	w.logger.Info("Stale sweeper started",
		slog.Duration("interval", w.sweepInterval),
		slog.Duration("stale_after", w.staleAfter),
	)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep fails every record older than the stale threshold and returns their ids
func (w *Worker) sweep(ctx context.Context) []string {
	sweepCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	cutoff := w.now().Add(-w.staleAfter)
	ids, err := w.records.FailStale(sweepCtx, cutoff, domain.ReasonStale)
	if err != nil {
		w.logger.Error("Failed to sweep stale documents",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	w.logger.Warn("Stale documents marked as failed",
		slog.Int("count", len(ids)),
		slog.Time("cutoff", cutoff),
	)
	for _, id := range ids {
		w.announceFailed(sweepCtx, events.Payload{
			DocumentID: id,
			Status:     document.StatusFailed,
			Reason:     domain.ReasonStale,
		})
	}
	return ids
}
