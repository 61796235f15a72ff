package dto

import (
	"time"

	"agentforms-webhooks/internal/core/domain"
)

// EventRequest is the request body for POST /api/v1/events.
type EventRequest struct {
	ID            string           `json:"id" binding:"omitempty,max=128,safe_id"`
	Event         string           `json:"event" binding:"required,event_name"`
	AgentID       *string          `json:"agent_id,omitempty" binding:"omitempty,max=128,safe_id"`
	CorrelationID *string          `json:"correlation_id,omitempty" binding:"omitempty,max=256"`
	Data          EventDataRequest `json:"data"`
	OccurredAt    *time.Time       `json:"occurred_at,omitempty"`
}

// EventDataRequest mirrors the data section of the outbound envelope.
type EventDataRequest struct {
	Session map[string]any `json:"session" binding:"required"`
	Agent   map[string]any `json:"agent,omitempty"`
}

// ToDomain converts the request into an engine event.
func (r EventRequest) ToDomain() domain.Event {
	e := domain.Event{
		ID:            r.ID,
		Name:          r.Event,
		AgentID:       r.AgentID,
		CorrelationID: r.CorrelationID,
		Data: domain.EventData{
			Session: r.Data.Session,
			Agent:   r.Data.Agent,
		},
	}
	if r.OccurredAt != nil {
		e.OccurredAt = *r.OccurredAt
	}
	return e
}

// EventAcceptedResponse acknowledges an event handed to the dispatcher.
type EventAcceptedResponse struct {
	Event    string `json:"event"`
	EventID  string `json:"event_id,omitempty"`
	Accepted bool   `json:"accepted"`
}

// DeliveryListResponse wraps the recent attempts of one subscriber.
type DeliveryListResponse struct {
	Items []domain.DeliveryAttempt `json:"items"`
	Count int                      `json:"count"`
	Limit int                      `json:"limit"`
}
