package service

import (
	"context"
	"encoding/json"
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

func TestDeliveryService_TestDeliverySuccess(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionCompleted)
	sub.Retry = fastRetry(3)
	e := newEngine(RetryDriverOptions{}, sub)
	svc := NewDeliveryService(e.subs, e.logs, e.driver, newTestLogger())

	res, err := svc.TestDelivery(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, http.StatusOK, *res.StatusCode)
	assert.Empty(t, res.Error)

	reqs := rcv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.EventWebhookTest, reqs[0].Headers.Get(HeaderEvent))
	var envelope domain.Envelope
	require.NoError(t, json.Unmarshal(reqs[0].Body, &envelope))
	assert.Equal(t, domain.EventWebhookTest, envelope.Event)
	assert.Equal(t, "Test Agent", envelope.Data.Agent["name"])

	entries := e.logs.ForSubscriber(sub.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, res.AttemptID, entries[0].ID.String())

	stored, _ := e.subs.GetByID(context.Background(), sub.ID)
	require.NotNil(t, stored.LastSuccessAt)
	assert.Equal(t, domain.DeliveryStatusSuccess, *stored.LastDeliveryStatus)
}

func TestDeliveryService_TestDeliveryFailureDoesNotRetry(t *testing.T) {
	rcv := newReceiver(t, http.StatusBadGateway)
	sub := testSubscriber(rcv.URL, domain.EventSessionCompleted)
	sub.Retry = fastRetry(3)
	sub.RateLimitPerMinute = 1
	e := newEngine(RetryDriverOptions{}, sub)
	svc := NewDeliveryService(e.subs, e.logs, e.driver, newTestLogger())

	res, err := svc.TestDelivery(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP 502", res.Error)
	assert.Len(t, rcv.Requests(), 1)
	assert.Len(t, e.logs.ForSubscriber(sub.ID), 1)
}

func TestDeliveryService_TestDeliveryPausedSubscriber(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL)
	sub.Status = domain.SubscriberStatusPaused
	e := newEngine(RetryDriverOptions{}, sub)
	svc := NewDeliveryService(e.subs, e.logs, e.driver, newTestLogger())

	res, err := svc.TestDelivery(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestDeliveryService_TestDeliveryErrors(t *testing.T) {
	deleted := testSubscriber("http://127.0.0.1:1")
	deleted.Status = domain.SubscriberStatusDeleted
	e := newEngine(RetryDriverOptions{}, deleted)
	svc := NewDeliveryService(e.subs, e.logs, e.driver, newTestLogger())

	_, err := svc.TestDelivery(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSubscriberNotFound)

	_, err = svc.TestDelivery(context.Background(), deleted.ID)
	assert.ErrorIs(t, err, ErrSubscriberInactive)
	assert.Empty(t, e.logs.Entries())
}

func TestDeliveryService_TestDeliveryRepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	e := newEngine(RetryDriverOptions{})
	svc := NewDeliveryService(repo, e.logs, e.driver, newTestLogger())

	_, err := svc.TestDelivery(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubscriberNotFound)
}

func TestDeliveryService_ListDeliveries(t *testing.T) {
	sub := testSubscriber("http://example.test")
	e := newEngine(RetryDriverOptions{}, sub)
	svc := NewDeliveryService(e.subs, e.logs, e.driver, newTestLogger())

	base := time.Now()
	for i := 1; i <= 3; i++ {
		_, err := e.logs.RecordDeliveryAttempt(context.Background(), &domain.DeliveryAttempt{
			ID:           uuid.New(),
			SubscriberID: sub.ID,
			Attempt:      i,
			Status:       domain.DeliveryStatusFailed,
			StartedAt:    base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	got, err := svc.ListDeliveries(context.Background(), sub.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Attempt)
	assert.Equal(t, 2, got[1].Attempt)

	all, err := svc.ListDeliveries(context.Background(), sub.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.ListDeliveries(context.Background(), uuid.New(), 10)
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestDeliveryService_ListDeliveriesClampsLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	logs := mocks.NewMockDeliveryLogReader(ctrl)
	sub := testSubscriber("http://example.test")
	subs := memory.NewSubscriberStore(sub)

	logs.EXPECT().ListBySubscriber(gomock.Any(), sub.ID, MaxDeliveryListLimit).Return(nil, nil)
	logs.EXPECT().ListBySubscriber(gomock.Any(), sub.ID, DefaultDeliveryListLimit).Return(nil, nil)

	svc := NewDeliveryService(subs, logs, nil, newTestLogger())

	got, err := svc.ListDeliveries(context.Background(), sub.ID, 10_000)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = svc.ListDeliveries(context.Background(), sub.ID, -1)
	require.NoError(t, err)
}
