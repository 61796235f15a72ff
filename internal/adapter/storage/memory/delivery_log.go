package memory

import (
	"context"
	"sort"
	"sync"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

// DeliveryLog is an append-only in-memory ports.DeliveryLogStore and ports.DeliveryLogReader.
type DeliveryLog struct {
	mu      sync.RWMutex
	entries []domain.DeliveryAttempt
}

// NewDeliveryLog creates an empty log.
func NewDeliveryLog() *DeliveryLog {
	return &DeliveryLog{}
}

// RecordDeliveryAttempt appends a copy of attempt.
func (l *DeliveryLog) RecordDeliveryAttempt(_ context.Context, attempt *domain.DeliveryAttempt) (*domain.DeliveryAttempt, error) {
	saved := *attempt
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}

	l.mu.Lock()
	l.entries = append(l.entries, saved)
	l.mu.Unlock()

	out := saved
	return &out, nil
}

// ListBySubscriber returns up to limit attempts, newest first.
func (l *DeliveryLog) ListBySubscriber(_ context.Context, subscriberID uuid.UUID, limit int) ([]domain.DeliveryAttempt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.DeliveryAttempt, 0)
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].SubscriberID == subscriberID {
			out = append(out, l.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns every recorded attempt in insertion order.
func (l *DeliveryLog) Entries() []domain.DeliveryAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.DeliveryAttempt(nil), l.entries...)
}

// ForSubscriber returns the subscriber's attempts in insertion order.
func (l *DeliveryLog) ForSubscriber(subscriberID uuid.UUID) []domain.DeliveryAttempt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.DeliveryAttempt
	for _, e := range l.entries {
		if e.SubscriberID == subscriberID {
			out = append(out, e)
		}
	}
	return out
}
