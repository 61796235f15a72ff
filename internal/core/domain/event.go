package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle events emitted by the conversation runtime.
const (
	EventSessionStarted   = "session_started"
	EventFieldCollected   = "field_collected"
	EventSessionCompleted = "session_completed"
	EventSessionAbandoned = "session_abandoned"

	// EventWebhookTest is used by interactive test deliveries.
	EventWebhookTest = "webhook_test"
)

// IsLifecycleEvent reports whether name is one of the producer-facing events.
func IsLifecycleEvent(name string) bool {
	switch name {
	case EventSessionStarted, EventFieldCollected, EventSessionCompleted, EventSessionAbandoned:
		return true
	default:
		return false
	}
}

// EventData is the data section of the outbound envelope.
type EventData struct {
	Session map[string]any `json:"session"`
	Agent   map[string]any `json:"agent,omitempty"`
}

// Event is a lifecycle event handed to the engine by a producer.
type Event struct {
	ID            string    `json:"id,omitempty"` // optional idempotency key
	Name          string    `json:"event"`
	AgentID       *string   `json:"agent_id,omitempty"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Data          EventData `json:"data"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Envelope is the exact JSON body sent to subscribers.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp string    `json:"timestamp"`
	Data      EventData `json:"data"`
}

// NewEnvelope builds the wire envelope with an RFC3339 UTC timestamp.
func NewEnvelope(e Event) Envelope {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	data := e.Data
	if data.Session == nil {
		data.Session = map[string]any{}
	}
	return Envelope{
		Event:     e.Name,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// RetryTask is the durable representation of a pending retry.
type RetryTask struct {
	ID            uuid.UUID `json:"id"`
	ChainID       uuid.UUID `json:"chain_id"`
	SubscriberID  uuid.UUID `json:"subscriber_id"`
	Event         string    `json:"event"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Body          []byte    `json:"body"`
	Attempt       int       `json:"attempt"` // number of the attempt to run
	DueAt         time.Time `json:"due_at"`
}
