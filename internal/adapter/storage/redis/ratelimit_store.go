package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements fixed-window rate limiting counters backed by Redis.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "afw:ratelimit:",
	}
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// Allow counts one hit against key in the current window.
// Windows are aligned to multiples of window since the Unix epoch.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	secs := int64(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	windowID := time.Now().Unix() / secs
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, time.Duration(secs+1)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}
	count := incr.Val()

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * secs,
	}, nil
}

// SubscriberLimiter implements ports.DeliveryLimiter on top of RateLimitStore,
// so budgets are shared by every engine instance.
type SubscriberLimiter struct {
	store *RateLimitStore
}

// NewSubscriberLimiter creates a per-subscriber, per-minute delivery limiter.
func NewSubscriberLimiter(store *RateLimitStore) *SubscriberLimiter {
	return &SubscriberLimiter{store: store}
}

// Allow spends one delivery from the subscriber's budget for the current minute.
func (l *SubscriberLimiter) Allow(ctx context.Context, subscriberID uuid.UUID, perMinute int) (bool, time.Time, error) {
	if perMinute <= 0 {
		return true, time.Time{}, nil
	}
	res, err := l.store.Allow(ctx, "subscriber:"+subscriberID.String(), int64(perMinute), time.Minute)
	if err != nil {
		return false, time.Time{}, err
	}
	if res.Allowed {
		return true, time.Time{}, nil
	}
	return false, time.Unix(res.ResetAt, 0), nil
}
