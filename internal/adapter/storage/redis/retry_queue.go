package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRetryLease is how long a claimed task stays invisible to other workers.
const DefaultRetryLease = 5 * time.Minute

// claimScript leases due tasks atomically. Expired leases are reclaimed first,
// then due ids move from the due set to the processing set scored by lease
// expiry. It returns a flat list of id, payload pairs. Ids whose payload is
// gone are dropped from the processing set.
//
// KEYS: due, processing, tasks. ARGV: now ms, lease expiry ms, limit.
var claimScript = goredis.NewScript(`
local claimed = {}
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
for _, id in ipairs(expired) do
	redis.call('ZADD', KEYS[2], ARGV[2], id)
	table.insert(claimed, id)
end

local remaining = tonumber(ARGV[3]) - #claimed
if remaining > 0 then
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, remaining)
	for _, id in ipairs(due) do
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		table.insert(claimed, id)
	end
end

local out = {}
for _, id in ipairs(claimed) do
	local payload = redis.call('HGET', KEYS[3], id)
	if payload then
		table.insert(out, id)
		table.insert(out, payload)
	else
		redis.call('ZREM', KEYS[2], id)
	end
end
return out
`)

// RetryQueue implements ports.RetryQueue with a sorted set of task ids scored
// by due time, a processing set scored by lease expiry and a hash holding the
// encoded tasks. Undecodable tasks are moved to a dead-letter hash.
type RetryQueue struct {
	client        *goredis.Client
	lease         time.Duration
	dueKey        string
	processingKey string
	tasksKey      string
	deadKey       string
	log           zerolog.Logger
}

// NewRetryQueue creates a new Redis-backed retry queue. A non-positive lease
// uses DefaultRetryLease.
func NewRetryQueue(client *goredis.Client, lease time.Duration, log zerolog.Logger) *RetryQueue {
	if lease <= 0 {
		lease = DefaultRetryLease
	}
	return &RetryQueue{
		client:        client,
		lease:         lease,
		dueKey:        "afw:retry:due",
		processingKey: "afw:retry:processing",
		tasksKey:      "afw:retry:tasks",
		deadKey:       "afw:retry:dead",
		log:           log,
	}
}

// Schedule stores task and makes it claimable at task.DueAt.
func (q *RetryQueue) Schedule(ctx context.Context, task domain.RetryTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode retry task: %w", err)
	}
	id := task.ID.String()

	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.tasksKey, id, payload)
		pipe.ZAdd(ctx, q.dueKey, goredis.Z{Score: float64(task.DueAt.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis schedule retry: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit tasks due at or before now. Leases that expired
// without an Ack are reclaimed first. The script decides ownership, so
// concurrent workers never hold the same lease.
func (q *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryTask, error) {
	if limit <= 0 {
		return nil, nil
	}
	leaseUntil := now.Add(q.lease)

	flat, err := claimScript.Run(ctx, q.client,
		[]string{q.dueKey, q.processingKey, q.tasksKey},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(leaseUntil.UnixMilli(), 10),
		limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("redis claim retries: %w", err)
	}

	tasks := make([]domain.RetryTask, 0, len(flat)/2)
	var errs []error
	for i := 0; i+1 < len(flat); i += 2 {
		id, payload := flat[i], flat[i+1]

		var task domain.RetryTask
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			q.log.Error().Err(err).Str("task_id", id).Msg("undecodable retry task moved to dead letter")
			if err := q.bury(ctx, id, payload); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, errors.Join(errs...)
}

// Ack deletes a claimed task.
func (q *RetryQueue) Ack(ctx context.Context, taskID uuid.UUID) error {
	id := taskID.String()
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, q.processingKey, id)
		pipe.HDel(ctx, q.tasksKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis ack retry %s: %w", id, err)
	}
	return nil
}

func (q *RetryQueue) bury(ctx context.Context, id, payload string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.deadKey, id, payload)
		pipe.HDel(ctx, q.tasksKey, id)
		pipe.ZRem(ctx, q.processingKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis dead-letter retry %s: %w", id, err)
	}
	return nil
}

// Len returns the number of tasks waiting to become due.
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.dueKey).Result()
}

// InFlight returns the number of leased, unacknowledged tasks.
func (q *RetryQueue) InFlight(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.processingKey).Result()
}
