package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDeliveryListLimit is used when a caller asks for no specific page size.
const (
	DefaultDeliveryListLimit = 50
	MaxDeliveryListLimit     = 500
)

var (
	// ErrSubscriberNotFound is returned when the subscriber id is unknown.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrSubscriberInactive is returned for deleted subscribers.
	ErrSubscriberInactive = errors.New("subscriber is not active")
)

// deliveryService implements ports.DeliveryService.
type deliveryService struct {
	subscribers ports.SubscriberRepository
	logs        ports.DeliveryLogReader
	driver      *RetryDriver
	log         zerolog.Logger
}

// NewDeliveryService creates the operator-facing delivery service.
func NewDeliveryService(
	subscribers ports.SubscriberRepository,
	logs ports.DeliveryLogReader,
	driver *RetryDriver,
	log zerolog.Logger,
) ports.DeliveryService {
	return &deliveryService{
		subscribers: subscribers,
		logs:        logs,
		driver:      driver,
		log:         log,
	}
}

// TestDelivery sends one sample event to the subscriber and reports the result
// synchronously. No retries and no rate limit apply.
func (s *deliveryService) TestDelivery(ctx context.Context, subscriberID uuid.UUID) (*domain.TestDeliveryResult, error) {
	sub, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriberNotFound
	}
	if sub.Status == domain.SubscriberStatusDeleted {
		return nil, ErrSubscriberInactive
	}

	body, err := json.Marshal(domain.NewEnvelope(sampleEvent(sub)))
	if err != nil {
		return nil, fmt.Errorf("encoding test envelope: %w", err)
	}

	entry, res := s.driver.DeliverOnce(ctx, sub, domain.EventWebhookTest, body)

	out := &domain.TestDeliveryResult{
		Success:    res.Success(),
		DurationMs: res.Duration.Milliseconds(),
		AttemptID:  entry.ID.String(),
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		out.StatusCode = &code
	}
	if !out.Success {
		out.Error = failureMessage(res)
	}

	s.log.Info().
		Str("subscriber_id", subscriberID.String()).
		Bool("success", out.Success).
		Msg("test delivery sent")

	return out, nil
}

// ListDeliveries returns the most recent attempts for a subscriber, newest first.
func (s *deliveryService) ListDeliveries(ctx context.Context, subscriberID uuid.UUID, limit int) ([]domain.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = DefaultDeliveryListLimit
	}
	if limit > MaxDeliveryListLimit {
		limit = MaxDeliveryListLimit
	}

	sub, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriberNotFound
	}

	attempts, err := s.logs.ListBySubscriber(ctx, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}
	return attempts, nil
}

func sampleEvent(sub *domain.Subscriber) domain.Event {
	agentID := "agent_test"
	if sub.AgentID != nil && *sub.AgentID != "" {
		agentID = *sub.AgentID
	}
	now := time.Now()
	return domain.Event{
		Name:    domain.EventWebhookTest,
		AgentID: &agentID,
		Data: domain.EventData{
			Session: map[string]any{
				"id":         "sess_test_" + uuid.NewString()[:8],
				"agent_id":   agentID,
				"status":     "in_progress",
				"started_at": now.UTC().Format(time.RFC3339),
				"fields":     map[string]any{},
			},
			Agent: map[string]any{
				"id":   agentID,
				"name": "Test Agent",
			},
		},
		OccurredAt: now,
	}
}
