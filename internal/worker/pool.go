package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Info("Worker goroutine stopping - context canceled")
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				logger.Info("Worker goroutine stopping - jobsChan closed")
				return
			}

			err := w.processMessage(ctx, msg)
			w.settle(ctx, logger, msg, err)
		}
	}
}

// settle acknowledges msg according to the processing result. Retryable
// failures are republished with the next attempt number until the attempts
// run out, then dead-lettered.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger, msg *domain.FinalizeMessage, err error) {
	logger = logger.With(
		slog.String("document_id", msg.DocumentID()),
		slog.Int("attempt", msg.Payload.Attempt),
	)

	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	logger.Error("Finalize failed", slog.String("error", err.Error()))

	if w.shouldRetry(err, msg) {
		next := msg.Payload
		next.Attempt++
		pubErr := w.publisher.Publish(ctx, events.TypeFinalize, next)
		if pubErr == nil {
			if ackErr := msg.Delivery.Ack(false); ackErr != nil {
				logger.Error("Failed to ACK retried message", slog.String("error", ackErr.Error()))
			}
			logger.Info("Finalize scheduled for retry", slog.Int("next_attempt", next.Attempt))
			return
		}
		logger.Warn("Failed to republish, requeueing", slog.String("error", pubErr.Error()))
		if nackErr := msg.Delivery.Nack(false, true); nackErr != nil {
			logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
		}
		return
	}

	if nackErr := msg.Delivery.Nack(false, false); nackErr != nil {
		logger.Error("Failed to NACK message", slog.String("error", nackErr.Error()))
		return
	}
	logger.Warn("Message dead-lettered")
}

// shouldRetry determines if a message gets another attempt
func (w *Worker) shouldRetry(err error, msg *domain.FinalizeMessage) bool {
	var retryableErr *domain.RetryableError
	if !errors.As(err, &retryableErr) {
		return false
	}
	// attempts are zero-based
	return msg.Payload.Attempt+1 < w.maxAttempts
}
