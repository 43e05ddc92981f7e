package domain

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/docflow/internal/events"
)

// FinalizeMessage is a decoded document.finalize event awaiting processing
type FinalizeMessage struct {
	EventID  string
	Payload  events.Payload
	Delivery amqp.Delivery
}

// DocumentID returns the id of the record to finalize
func (m *FinalizeMessage) DocumentID() string {
	return m.Payload.DocumentID
}
