package memory

import (
	"context"
	"sync"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

// SubscriberStore is an in-memory ports.SubscriberRepository and
// ports.SubscriberStatusStore for development and tests.
type SubscriberStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]domain.Subscriber
}

// NewSubscriberStore creates a store seeded with subs.
func NewSubscriberStore(subs ...domain.Subscriber) *SubscriberStore {
	s := &SubscriberStore{subs: make(map[uuid.UUID]domain.Subscriber, len(subs))}
	for _, sub := range subs {
		s.Put(sub)
	}
	return s
}

// Put inserts or replaces a subscriber. A nil ID is assigned.
func (s *SubscriberStore) Put(sub domain.Subscriber) domain.Subscriber {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	s.mu.Lock()
	s.subs[sub.ID] = cloneSubscriber(sub)
	s.mu.Unlock()
	return sub
}

// ListByTrigger returns every subscriber eligible for the event and agent.
func (s *SubscriberStore) ListByTrigger(_ context.Context, event string, agentID *string) ([]domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Subscriber, 0)
	for _, sub := range s.subs {
		if sub.Eligible(event, agentID) {
			out = append(out, cloneSubscriber(sub))
		}
	}
	return out, nil
}

// GetByID returns nil, nil for an unknown id.
func (s *SubscriberStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	c := cloneSubscriber(sub)
	return &c, nil
}

// UpdateDeliveryStatus sets the last delivery status and, when successAt is
// given, the last success time. Last write wins.
func (s *SubscriberStore) UpdateDeliveryStatus(_ context.Context, id uuid.UUID, status domain.DeliveryStatus, successAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil
	}
	st := status
	sub.LastDeliveryStatus = &st
	if successAt != nil {
		t := *successAt
		sub.LastSuccessAt = &t
	}
	sub.UpdatedAt = time.Now()
	s.subs[id] = sub
	return nil
}

func cloneSubscriber(sub domain.Subscriber) domain.Subscriber {
	if sub.Headers != nil {
		h := make(map[string]string, len(sub.Headers))
		for k, v := range sub.Headers {
			h[k] = v
		}
		sub.Headers = h
	}
	if sub.Triggers != nil {
		sub.Triggers = append([]string(nil), sub.Triggers...)
	}
	return sub
}
