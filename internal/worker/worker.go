// Package worker finishes Job Records the API could not finalize and fails
// records stuck at processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/docflow/internal/document"
	"github.com/cuongbtq/docflow/internal/events"
	"github.com/cuongbtq/docflow/internal/worker/domain"
)

// Records is the part of the Job Record Gateway the worker writes to
type Records interface {
	Update(ctx context.Context, id string, patch document.Patch) (*document.Record, error)
	FailStale(ctx context.Context, cutoff time.Time, reason string) ([]string, error)
}

// Broker delivers finalize messages; *rabbitmq.Client implements it
type Broker interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	NotifyClose() <-chan *amqp.Error
}

// Publisher re-emits events
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload events.Payload) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Records       Records
	Broker        Broker
	Publisher     Publisher
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	MaxAttempts   int
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// Worker represents the background finalize worker
type Worker struct {
	logger        *slog.Logger
	records       Records
	broker        Broker
	publisher     Publisher
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	maxAttempts   int
	staleAfter    time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	jobsChan chan *domain.FinalizeMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// ErrConnectionClosed is returned by Start when the broker channel closes
var ErrConnectionClosed = errors.New("broker connection closed")

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		records:       cfg.Records,
		broker:        cfg.Broker,
		publisher:     cfg.Publisher,
		workerID:      fmt.Sprintf("%s-%s", domain.ConsumerTagPrefix, uuid.NewString()[:8]),
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		maxAttempts:   cfg.MaxAttempts,
		staleAfter:    cfg.StaleAfter,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.maxAttempts < 1 {
		w.maxAttempts = 1
	}
	if w.publisher == nil {
		w.publisher = events.Noop{}
	}
	w.jobsChan = make(chan *domain.FinalizeMessage, w.concurrency)
	return w
}

// Start consumes finalize messages and runs the stale sweeper until ctx is
// canceled or the broker connection closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_attempts", w.maxAttempts),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if w.sweepInterval > 0 && w.staleAfter > 0 {
		w.wg.Add(1)
		go w.runSweeper(ctx)
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		w.startMessageDispatcher(ctx, deliveries)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
		<-dispatchDone
		return nil
	case amqpErr, ok := <-w.broker.NotifyClose():
		if ok && amqpErr != nil {
			w.logger.Error("RabbitMQ channel closed",
				slog.String("error", amqpErr.Error()),
			)
		}
		return ErrConnectionClosed
	case <-dispatchDone:
		if ctx.Err() != nil {
			return nil
		}
		return ErrConnectionClosed
	}
}

// Stop gracefully stops the worker, waiting at most timeout for in-flight messages
func (w *Worker) Stop(timeout time.Duration) error {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker did not stop within %s", timeout)
	}
}
