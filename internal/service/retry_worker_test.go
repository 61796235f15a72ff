package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"agentforms-webhooks/internal/adapter/storage/memory"
	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRetryWorker_PollResumesDueTasks(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)
	sub.Retry = fastRetry(3)
	queue := memory.NewRetryQueue()
	e := newEngine(RetryDriverOptions{Queue: queue}, sub)
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{BatchSize: 10}, newTestLogger())

	ctx := context.Background()
	chainID := uuid.New()
	require.NoError(t, queue.Schedule(ctx, domain.RetryTask{
		ID: uuid.New(), ChainID: chainID, SubscriberID: sub.ID,
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 2,
		DueAt: time.Now().Add(-time.Second),
	}))
	require.NoError(t, queue.Schedule(ctx, domain.RetryTask{
		ID: uuid.New(), ChainID: uuid.New(), SubscriberID: sub.ID,
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 2,
		DueAt: time.Now().Add(time.Hour),
	}))

	assert.Equal(t, 1, w.Poll(ctx))
	assert.Equal(t, 1, queue.Len(), "future task stays queued")

	entries := e.logs.ForSubscriber(sub.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, chainID, entries[0].ChainID)
	assert.Equal(t, 2, entries[0].Attempt)
	assert.Equal(t, domain.DeliveryStatusSuccess, entries[0].Status)
	assert.Len(t, rcv.Requests(), 1)

	assert.Equal(t, 0, w.Poll(ctx))
	assert.Zero(t, queue.InFlight(), "handled task acknowledged")
}

func TestRetryWorker_PollClaimError(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockRetryQueue(ctrl)
	queue.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 50).Return(nil, errors.New("redis down"))

	e := newEngine(RetryDriverOptions{})
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{}, newTestLogger())

	assert.Equal(t, 0, w.Poll(context.Background()))
}

func TestRetryWorker_StartStop(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)
	queue := memory.NewRetryQueue()
	e := newEngine(RetryDriverOptions{Queue: queue}, sub)
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{PollInterval: 10 * time.Millisecond}, newTestLogger())

	w.Start(context.Background())
	w.Start(context.Background())

	require.NoError(t, queue.Schedule(context.Background(), domain.RetryTask{
		ID: uuid.New(), ChainID: uuid.New(), SubscriberID: sub.ID,
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 1,
		DueAt: time.Now(),
	}))

	assert.Eventually(t, func() bool {
		return len(rcv.Requests()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Equal(t, 0, queue.Len())
	assert.Zero(t, queue.InFlight())
}

func TestRetryWorker_ResumesTasksClaimedAlongsideError(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)

	ctrl := gomock.NewController(t)
	queue := mocks.NewMockRetryQueue(ctrl)
	task := domain.RetryTask{
		ID: uuid.New(), ChainID: uuid.New(), SubscriberID: sub.ID,
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 2,
	}
	queue.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 10).
		Return([]domain.RetryTask{task}, errors.New("dead-letter write failed"))
	queue.EXPECT().Ack(gomock.Any(), task.ID).Return(nil)

	e := newEngine(RetryDriverOptions{Queue: queue}, sub)
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{BatchSize: 10}, newTestLogger())

	assert.Equal(t, 1, w.Poll(context.Background()))
	assert.Len(t, rcv.Requests(), 1)
	entries := e.logs.ForSubscriber(sub.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DeliveryStatusSuccess, entries[0].Status)
}

func TestRetryWorker_DeferredTaskIsNotAcknowledged(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	queue := mocks.NewMockRetryQueue(ctrl)
	task := domain.RetryTask{
		ID: uuid.New(), ChainID: uuid.New(), SubscriberID: uuid.New(),
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 2,
	}
	queue.EXPECT().ClaimDue(gomock.Any(), gomock.Any(), 10).Return([]domain.RetryTask{task}, nil)
	queue.EXPECT().Schedule(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	// no Ack: the lease expires and the task is claimed again

	e := newEngine(RetryDriverOptions{Subscribers: repo, Queue: queue})
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{BatchSize: 10}, newTestLogger())

	assert.Equal(t, 1, w.Poll(context.Background()))
	assert.Empty(t, e.logs.ForSubscriber(task.SubscriberID))
}

func TestRetryWorker_UnacknowledgedTaskIsRetriedAfterLease(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)

	queue := memory.NewRetryQueue().WithLease(20 * time.Millisecond)
	ctx := context.Background()
	task := domain.RetryTask{
		ID: uuid.New(), ChainID: uuid.New(), SubscriberID: sub.ID,
		Event: domain.EventSessionStarted, Body: testBody, Attempt: 2,
		DueAt: time.Now().Add(-time.Second),
	}
	require.NoError(t, queue.Schedule(ctx, task))

	// a worker that crashed after claiming
	claimed, err := queue.ClaimDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	e := newEngine(RetryDriverOptions{Queue: queue}, sub)
	w := NewRetryWorker(queue, e.driver, RetryWorkerConfig{BatchSize: 10}, newTestLogger())

	assert.Equal(t, 0, w.Poll(ctx), "lease still held")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, w.Poll(ctx))
	assert.Len(t, rcv.Requests(), 1)
	assert.Zero(t, queue.InFlight())
}
