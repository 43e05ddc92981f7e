package domain

// Failure reasons written by the worker
const (
	// ReasonStale is recorded on records stuck at processing past the deadline
	ReasonStale = "Processing timed out"

	// ReasonUnknown is used when a finalize event carries no reason
	ReasonUnknown = "Processing failed"
)

// ConsumerTagPrefix prefixes the AMQP consumer tag of each worker process
const ConsumerTagPrefix = "docflow-worker"
