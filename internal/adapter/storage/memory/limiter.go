package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Limiter is an in-memory ports.DeliveryLimiter using one token bucket per
// subscriber. The bucket refills perMinute tokens per minute with a burst of perMinute.
type Limiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*bucket
	now      func() time.Time
}

type bucket struct {
	perMinute int
	limiter   *rate.Limiter
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		limiters: make(map[uuid.UUID]*bucket),
		now:      time.Now,
	}
}

// Allow consumes a token when one is available. When denied, retryAt is when
// the next token will be available.
func (l *Limiter) Allow(_ context.Context, subscriberID uuid.UUID, perMinute int) (bool, time.Time, error) {
	now := l.now()
	if perMinute <= 0 {
		return true, now, nil
	}

	l.mu.Lock()
	b, ok := l.limiters[subscriberID]
	if !ok || b.perMinute != perMinute {
		b = &bucket{
			perMinute: perMinute,
			limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		}
		l.limiters[subscriberID] = b
	}
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, now.Add(time.Minute), nil
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, now, nil
	}
	r.CancelAt(now)
	return false, now.Add(delay), nil
}
