package ports

import (
	"context"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// SubscriberRepository reads subscriber configuration owned by the authoring surface.
type SubscriberRepository interface {
	// ListByTrigger returns candidates for an event. Implementations may pre-filter
	// on enabled/status/trigger/agent scope; callers re-check eligibility.
	ListByTrigger(ctx context.Context, event string, agentID *string) ([]domain.Subscriber, error)
	// GetByID returns nil, nil when the subscriber does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error)
}

// DeliveryLogStore persists delivery attempts.
type DeliveryLogStore interface {
	RecordDeliveryAttempt(ctx context.Context, attempt *domain.DeliveryAttempt) (*domain.DeliveryAttempt, error)
}

// DeliveryLogReader backs the operator-facing delivery log.
type DeliveryLogReader interface {
	ListBySubscriber(ctx context.Context, subscriberID uuid.UUID, limit int) ([]domain.DeliveryAttempt, error)
}

// SubscriberStatusStore updates the two engine-owned subscriber fields.
// successAt is nil for non-successful attempts, leaving last_success_at unchanged.
type SubscriberStatusStore interface {
	UpdateDeliveryStatus(ctx context.Context, subscriberID uuid.UUID, status domain.DeliveryStatus, successAt *time.Time) error
}

// RetryQueue is a durable delay queue for pending retry attempts.
type RetryQueue interface {
	Schedule(ctx context.Context, task domain.RetryTask) error
	// ClaimDue leases up to limit tasks due at or before now. A leased task is
	// returned to exactly one caller and becomes claimable again if it is not
	// acknowledged before the lease expires. Tasks may be returned alongside an
	// error; callers must still process them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryTask, error)
	// Ack deletes a claimed task once its attempt has been handled.
	Ack(ctx context.Context, taskID uuid.UUID) error
}

// DeliveryLimiter enforces a subscriber's per-minute delivery budget.
type DeliveryLimiter interface {
	// Allow reports whether an attempt may run now. When denied, retryAt is the
	// earliest time the budget refills.
	Allow(ctx context.Context, subscriberID uuid.UUID, perMinute int) (allowed bool, retryAt time.Time, err error)
}

// EventDeduper drops repeated deliveries of the same producer event id.
type EventDeduper interface {
	// FirstSeen atomically marks key as seen. Returns true the first time only.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
