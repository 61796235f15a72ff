package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the state of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// ErrorKind tags failures that did not produce an HTTP response.
// HTTP-level failures carry only a status code and leave ErrorKind empty.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindNetwork       ErrorKind = "network_error"
	ErrorKindConfiguration ErrorKind = "configuration_error"
)

// DefaultMaxResponseBodyChars bounds the stored response body.
const DefaultMaxResponseBodyChars = 10000

// DeliveryAttempt records one HTTP try. It is immutable once recorded.
type DeliveryAttempt struct {
	ID              uuid.UUID         `json:"id"`
	SubscriberID    uuid.UUID         `json:"subscriber_id"`
	ChainID         uuid.UUID         `json:"chain_id"`
	Event           string            `json:"event"`
	CorrelationID   *string           `json:"correlation_id,omitempty"`
	Status          DeliveryStatus    `json:"status"`
	Attempt         int               `json:"attempt"`
	ResponseStatus  *int              `json:"response_status,omitempty"`
	ResponseBody    *string           `json:"response_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ErrorKind       ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage    *string           `json:"error_message,omitempty"`
	RequestBody     string            `json:"request_body"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
	DurationMs      int64             `json:"duration_ms"`
	WillRetry       bool              `json:"will_retry"`
	NextRetryAt     *time.Time        `json:"next_retry_at,omitempty"`
}

// Succeeded returns true if the attempt reached the subscriber successfully.
func (a *DeliveryAttempt) Succeeded() bool {
	return a.Status == DeliveryStatusSuccess
}

// DeliveryOutcome summarizes one retry chain for the fan-out caller.
type DeliveryOutcome struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	Success      bool      `json:"success"`
	Attempts     int       `json:"attempts"`
	Scheduled    bool      `json:"scheduled"` // handed to the durable retry queue
	Error        string    `json:"error,omitempty"`
}

// TestDeliveryResult is returned synchronously by an interactive test delivery.
type TestDeliveryResult struct {
	Success    bool   `json:"success"`
	StatusCode *int   `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	AttemptID  string `json:"attempt_id"`
}
