// Package events publishes document lifecycle events as CloudEvents over
// the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/cuongbtq/docflow/internal/document"
)

// Event types, also used as routing keys
const (
	TypeCreated   = "document.created"
	TypeCompleted = "document.completed"
	TypeFailed    = "document.failed"
	// TypeFinalize asks the worker to fail a record the API could not update
	TypeFinalize = "document.finalize"
)

// ContentType of structured-mode CloudEvents
const ContentType = "application/cloudevents+json"

// DefaultSource identifies events emitted by this system
const DefaultSource = "docflow/api-service"

// Payload is the data of every document event
type Payload struct {
	DocumentID string          `json:"document_id"`
	OwnerID    string          `json:"owner_id"`
	Kind       document.Kind   `json:"kind,omitempty"`
	Status     document.Status `json:"status,omitempty"`
	DocxPath   string          `json:"docx_path,omitempty"`
	PDFPath    string          `json:"pdf_path,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Attempt    int             `json:"attempt,omitempty"`
}

// Broker is the transport; *rabbitmq.Client implements it
type Broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Publisher wraps payloads into CloudEvents
type Publisher struct {
	broker Broker
	source string
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a new Publisher
func NewPublisher(broker Broker, source string, logger *slog.Logger) *Publisher {
	if source == "" {
		source = DefaultSource
	}
	return &Publisher{
		broker: broker,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Encode builds the JSON envelope of an event
func Encode(source, eventType string, payload Payload, at time.Time) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventType)
	e.SetTime(at)
	if payload.DocumentID != "" {
		e.SetSubject(payload.DocumentID)
	}
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return nil, fmt.Errorf("failed to set event data: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}

// Publish sends the event with its type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, payload Payload) error {
	body, err := Encode(p.source, eventType, payload, p.now())
	if err != nil {
		return err
	}

	if err := p.broker.PublishWithRetry(ctx, eventType, body, ContentType); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	p.logger.Debug("Event published",
		slog.String("type", eventType),
		slog.String("document_id", payload.DocumentID),
	)
	return nil
}

// Decode parses an envelope and its payload
func Decode(body []byte) (cloudevents.Event, Payload, error) {
	var e cloudevents.Event
	var p Payload

	if err := json.Unmarshal(body, &e); err != nil {
		return e, p, fmt.Errorf("failed to parse event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return e, p, fmt.Errorf("invalid event: %w", err)
	}
	if err := e.DataAs(&p); err != nil {
		return e, p, fmt.Errorf("failed to parse event data: %w", err)
	}
	return e, p, nil
}

// Noop discards events
type Noop struct{}

func (Noop) Publish(context.Context, string, Payload) error { return nil }
