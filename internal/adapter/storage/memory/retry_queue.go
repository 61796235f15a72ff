package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

// defaultLease matches the redis queue's default.
const defaultLease = 5 * time.Minute

type lease struct {
	task  domain.RetryTask
	until time.Time
}

// RetryQueue is an in-memory ports.RetryQueue. Tasks do not survive a restart.
type RetryQueue struct {
	mu     sync.Mutex
	tasks  []domain.RetryTask
	leased map[uuid.UUID]lease
	lease  time.Duration
}

// NewRetryQueue creates an empty queue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{leased: map[uuid.UUID]lease{}, lease: defaultLease}
}

// WithLease sets how long a claimed task stays hidden before it is reclaimed.
func (q *RetryQueue) WithLease(d time.Duration) *RetryQueue {
	q.mu.Lock()
	q.lease = d
	q.mu.Unlock()
	return q
}

// Schedule adds a task.
func (q *RetryQueue) Schedule(_ context.Context, task domain.RetryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

// ClaimDue leases up to limit tasks due at or before now, earliest first.
// Expired leases are handed out again before new tasks.
func (q *RetryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.RetryTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	full := func(n int) bool { return limit > 0 && n >= limit }
	var claimed []domain.RetryTask

	expired := make([]lease, 0)
	for _, l := range q.leased {
		if !l.until.After(now) {
			expired = append(expired, l)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].until.Before(expired[j].until) })
	for _, l := range expired {
		if full(len(claimed)) {
			break
		}
		q.leased[l.task.ID] = lease{task: l.task, until: now.Add(q.lease)}
		claimed = append(claimed, l.task)
	}

	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].DueAt.Before(q.tasks[j].DueAt)
	})
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if !t.DueAt.After(now) && !full(len(claimed)) {
			q.leased[t.ID] = lease{task: t, until: now.Add(q.lease)}
			claimed = append(claimed, t)
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	return claimed, nil
}

// Ack drops a leased task.
func (q *RetryQueue) Ack(_ context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leased, taskID)
	return nil
}

// Len returns the number of tasks waiting to become due.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// InFlight returns the number of leased, unacknowledged tasks.
func (q *RetryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leased)
}
