package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"agentforms-webhooks/internal/adapter/storage/memory"
	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestDispatcher(e *engine, deduper *memory.Deduper, maxChains int) *FanOutDispatcher {
	resolver := NewTriggerResolver(e.subs, nil, nil, newTestLogger())
	var d *FanOutDispatcher
	if deduper == nil {
		d = NewFanOutDispatcher(resolver, e.driver, nil, nil, DispatcherConfig{MaxConcurrentChains: maxChains}, newTestLogger())
	} else {
		d = NewFanOutDispatcher(resolver, e.driver, deduper, nil, DispatcherConfig{MaxConcurrentChains: maxChains}, newTestLogger())
	}
	return d
}

func TestDispatch_EndToEndSessionCompleted(t *testing.T) {
	rcv1 := newReceiver(t, http.StatusOK)
	rcv2 := newReceiver(t, http.StatusOK)

	w1 := testSubscriber(rcv1.URL, domain.EventSessionCompleted, domain.EventSessionStarted)
	w1.AgentID = strPtr("agent-1")
	w1.AuthScheme = domain.AuthSchemeHMAC
	w1.AuthSecret = "s3cr3t"
	w2 := testSubscriber(rcv2.URL, domain.EventSessionCompleted)

	e := newEngine(RetryDriverOptions{}, w1, w2)
	d := newTestDispatcher(e, nil, 4)

	outcomes, err := d.Dispatch(context.Background(), domain.Event{
		Name:          domain.EventSessionCompleted,
		AgentID:       strPtr("agent-1"),
		CorrelationID: strPtr("sess-1"),
		Data: domain.EventData{Session: map[string]any{
			"session_id": "sess-1",
			"agent_id":   "agent-1",
		}},
		OccurredAt: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.Success)
		assert.Equal(t, 1, o.Attempts)
	}

	req1 := rcv1.Requests()
	require.Len(t, req1, 1)
	sig := req1[0].Headers.Get(HeaderSignature)
	require.NotEmpty(t, sig)
	assert.True(t, VerifySignature("s3cr3t", req1[0].Body, sig))
	assert.Equal(t, "sha256", req1[0].Headers.Get(HeaderSignatureAlgorithm))

	req2 := rcv2.Requests()
	require.Len(t, req2, 1)
	assert.Empty(t, req2[0].Headers.Get(HeaderSignature))

	assert.Equal(t, req1[0].Body, req2[0].Body, "every subscriber receives the same bytes")

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(req1[0].Body, &envelope))
	assert.Equal(t, "session_completed", envelope["event"])
	assert.Equal(t, "2026-03-01T10:30:00Z", envelope["timestamp"])
	data := envelope["data"].(map[string]any)
	assert.Equal(t, "sess-1", data["session"].(map[string]any)["session_id"])

	for _, sub := range []domain.Subscriber{w1, w2} {
		entries := e.logs.ForSubscriber(sub.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, 1, entries[0].Attempt)
		assert.Equal(t, domain.DeliveryStatusSuccess, entries[0].Status)
		assert.Equal(t, "sess-1", *entries[0].CorrelationID)
	}
}

func TestDispatch_FanOutIsolation(t *testing.T) {
	failing := newReceiver(t, http.StatusInternalServerError)
	ok := newReceiver(t, http.StatusOK)

	bad := testSubscriber(failing.URL, domain.EventSessionStarted)
	bad.Retry = domain.RetryPolicy{MaxRetries: 2, Backoff: domain.BackoffLinear, InitialDelayMs: 150}
	good := testSubscriber(ok.URL, domain.EventSessionStarted)

	e := newEngine(RetryDriverOptions{}, bad, good)
	d := newTestDispatcher(e, nil, 2)

	outcomes, err := d.Dispatch(context.Background(), domain.Event{Name: domain.EventSessionStarted})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	byID := map[string]domain.DeliveryOutcome{}
	for _, o := range outcomes {
		byID[o.SubscriberID.String()] = o
	}
	assert.False(t, byID[bad.ID.String()].Success)
	assert.Equal(t, 3, byID[bad.ID.String()].Attempts)
	assert.True(t, byID[good.ID.String()].Success)
	assert.Equal(t, 1, byID[good.ID.String()].Attempts)

	// the good chain finished long before the failing chain's backoff elapsed
	goodEntry := e.logs.ForSubscriber(good.ID)[0]
	badEntries := e.logs.ForSubscriber(bad.ID)
	require.Len(t, badEntries, 3)
	assert.True(t, goodEntry.CompletedAt.Before(badEntries[1].StartedAt))
}

func TestDispatch_NoSubscribers(t *testing.T) {
	e := newEngine(RetryDriverOptions{})
	outcomes, err := newTestDispatcher(e, nil, 1).Dispatch(context.Background(), domain.Event{Name: domain.EventSessionAbandoned})

	require.NoError(t, err)
	assert.NotNil(t, outcomes)
	assert.Empty(t, outcomes)
}

func TestDispatch_RequiresEventName(t *testing.T) {
	e := newEngine(RetryDriverOptions{})
	_, err := newTestDispatcher(e, nil, 1).Dispatch(context.Background(), domain.Event{})
	assert.Error(t, err)
}

func TestDispatch_ResolverErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)
	repo.EXPECT().ListByTrigger(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	e := newEngine(RetryDriverOptions{})
	d := NewFanOutDispatcher(NewTriggerResolver(repo, nil, nil, newTestLogger()), e.driver, nil, nil, DispatcherConfig{}, newTestLogger())

	_, err := d.Dispatch(context.Background(), domain.Event{Name: domain.EventSessionStarted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestDispatch_DuplicateEventDispatchedOnce(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventFieldCollected)
	e := newEngine(RetryDriverOptions{}, sub)
	d := newTestDispatcher(e, memory.NewDeduper(), 1)

	event := domain.Event{ID: "evt-42", Name: domain.EventFieldCollected}
	first, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, rcv.Requests(), 1)

	// events without an id are never de-duplicated
	_, _ = d.Dispatch(context.Background(), domain.Event{Name: domain.EventFieldCollected})
	_, _ = d.Dispatch(context.Background(), domain.Event{Name: domain.EventFieldCollected})
	assert.Len(t, rcv.Requests(), 3)
}

func TestDispatch_DedupeErrorDispatchesAnyway(t *testing.T) {
	ctrl := gomock.NewController(t)
	deduper := mocks.NewMockEventDeduper(ctrl)
	deduper.EXPECT().FirstSeen(gomock.Any(), "session_started:evt-1", 24*time.Hour).Return(false, errors.New("redis down"))

	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)
	e := newEngine(RetryDriverOptions{}, sub)
	d := NewFanOutDispatcher(NewTriggerResolver(e.subs, nil, nil, newTestLogger()), e.driver, deduper, nil, DispatcherConfig{}, newTestLogger())

	outcomes, err := d.Dispatch(context.Background(), domain.Event{ID: "evt-1", Name: domain.EventSessionStarted})
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

// peakServer answers 200 after hold and tracks the highest number of
// requests it served at once.
type peakServer struct {
	*httptest.Server
	inFlight atomic.Int32
	peak     atomic.Int32
	served   atomic.Int32
}

func newPeakServer(t *testing.T, hold time.Duration) *peakServer {
	t.Helper()
	p := &peakServer{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := p.inFlight.Add(1)
		for {
			cur := p.peak.Load()
			if n <= cur || p.peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(hold)
		p.inFlight.Add(-1)
		p.served.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(p.Close)
	return p
}

func TestDispatch_BoundedConcurrency(t *testing.T) {
	srv := newPeakServer(t, 30*time.Millisecond)

	var subs []domain.Subscriber
	for i := 0; i < 8; i++ {
		subs = append(subs, testSubscriber(srv.URL, domain.EventSessionStarted))
	}
	e := newEngine(RetryDriverOptions{}, subs...)

	outcomes, err := newTestDispatcher(e, nil, 2).Dispatch(context.Background(), domain.Event{Name: domain.EventSessionStarted})
	require.NoError(t, err)
	assert.Len(t, outcomes, 8)
	assert.LessOrEqual(t, srv.peak.Load(), int32(2))
}

func TestDispatchAsync_ConcurrencyBoundSpansEvents(t *testing.T) {
	srv := newPeakServer(t, 30*time.Millisecond)
	sub := testSubscriber(srv.URL, domain.EventSessionStarted)
	e := newEngine(RetryDriverOptions{}, sub)
	d := newTestDispatcher(e, nil, 1)

	for i := 0; i < 8; i++ {
		require.NoError(t, d.DispatchAsync(context.Background(), domain.Event{Name: domain.EventSessionStarted}))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(waitCtx))

	assert.Equal(t, int32(8), srv.served.Load())
	assert.Equal(t, int32(1), srv.peak.Load())
}

func TestDispatchAsync_RejectsWhenPendingQueueFull(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscriber(srv.URL, domain.EventSessionStarted)
	e := newEngine(RetryDriverOptions{}, sub)
	d := NewFanOutDispatcher(NewTriggerResolver(e.subs, nil, nil, newTestLogger()), e.driver, nil, nil,
		DispatcherConfig{MaxConcurrentChains: 4, MaxPendingEvents: 1}, newTestLogger())

	event := domain.Event{Name: domain.EventSessionStarted}
	require.NoError(t, d.DispatchAsync(context.Background(), event))
	assert.ErrorIs(t, d.DispatchAsync(context.Background(), event), ErrDispatchBusy)

	close(release)
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(waitCtx))

	require.NoError(t, d.DispatchAsync(context.Background(), event), "slot freed once the event finished")
	require.NoError(t, d.Wait(waitCtx))
	assert.Len(t, e.logs.ForSubscriber(sub.ID), 2)
}

func TestDispatch_ResolutionErrorLeavesEventRetryable(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)
	gomock.InOrder(
		repo.EXPECT().ListByTrigger(gomock.Any(), domain.EventSessionStarted, gomock.Nil()).Return(nil, errors.New("db down")),
		repo.EXPECT().ListByTrigger(gomock.Any(), domain.EventSessionStarted, gomock.Nil()).Return([]domain.Subscriber{sub}, nil),
	)

	e := newEngine(RetryDriverOptions{}, sub)
	d := NewFanOutDispatcher(NewTriggerResolver(repo, nil, nil, newTestLogger()), e.driver, memory.NewDeduper(), nil,
		DispatcherConfig{MaxConcurrentChains: 1}, newTestLogger())

	event := domain.Event{ID: "evt-1", Name: domain.EventSessionStarted}
	_, err := d.Dispatch(context.Background(), event)
	require.Error(t, err)

	outcomes, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Len(t, rcv.Requests(), 1)
}

func TestDispatchAsync_OutlivesCallerContext(t *testing.T) {
	rcv := newReceiver(t, http.StatusOK)
	rcv.delay = 50 * time.Millisecond
	sub := testSubscriber(rcv.URL, domain.EventSessionStarted)
	e := newEngine(RetryDriverOptions{}, sub)
	d := newTestDispatcher(e, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.DispatchAsync(ctx, domain.Event{Name: domain.EventSessionStarted}))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))

	entries := e.logs.ForSubscriber(sub.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DeliveryStatusSuccess, entries[0].Status)
}
