package service

import (
	"context"
	"errors"
	"testing"

	"agentforms-webhooks/internal/adapter/storage/memory"
	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports/mocks"
	"agentforms-webhooks/internal/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func subscriberIDs(subs []domain.Subscriber) []uuid.UUID {
	out := make([]uuid.UUID, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func TestTriggerResolver_AgentScoping(t *testing.T) {
	global := testSubscriber("http://g", domain.EventSessionCompleted)
	scopedA := testSubscriber("http://a", domain.EventSessionCompleted)
	scopedA.AgentID = strPtr("agent-A")

	resolver := NewTriggerResolver(memory.NewSubscriberStore(global, scopedA), nil, nil, newTestLogger())
	env := domain.Envelope{Event: domain.EventSessionCompleted}

	tests := []struct {
		name    string
		agentID *string
		want    []uuid.UUID
	}{
		{"query for A gets global and A", strPtr("agent-A"), []uuid.UUID{global.ID, scopedA.ID}},
		{"query for B gets only global", strPtr("agent-B"), []uuid.UUID{global.ID}},
		{"no-agent query gets only global", nil, []uuid.UUID{global.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.Resolve(context.Background(), domain.EventSessionCompleted, tt.agentID, env)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, subscriberIDs(got))
		})
	}
}

func TestTriggerResolver_RechecksRepositoryResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)

	ok := testSubscriber("http://ok", domain.EventFieldCollected)
	disabled := testSubscriber("http://disabled", domain.EventFieldCollected)
	disabled.Enabled = false
	deleted := testSubscriber("http://deleted", domain.EventFieldCollected)
	deleted.Status = domain.SubscriberStatusDeleted
	otherTrigger := testSubscriber("http://other", domain.EventSessionStarted)
	otherAgent := testSubscriber("http://agent", domain.EventFieldCollected)
	otherAgent.AgentID = strPtr("agent-2")

	repo.EXPECT().ListByTrigger(gomock.Any(), domain.EventFieldCollected, gomock.Nil()).
		Return([]domain.Subscriber{ok, disabled, deleted, otherTrigger, otherAgent}, nil)

	resolver := NewTriggerResolver(repo, nil, nil, newTestLogger())
	got, err := resolver.Resolve(context.Background(), domain.EventFieldCollected, nil, domain.Envelope{})

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ok.ID}, subscriberIDs(got))
}

func TestTriggerResolver_RepositoryErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSubscriberRepository(ctrl)
	dbErr := errors.New("connection reset")
	repo.EXPECT().ListByTrigger(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, dbErr)

	_, err := NewTriggerResolver(repo, nil, nil, newTestLogger()).
		Resolve(context.Background(), domain.EventSessionStarted, nil, domain.Envelope{})

	assert.ErrorIs(t, err, dbErr)
}

func TestTriggerResolver_Conditions(t *testing.T) {
	conditions, err := NewConditionEvaluator(8)
	require.NoError(t, err)
	metrics := observability.NewMetrics()

	always := testSubscriber("http://always", domain.EventSessionCompleted)
	matching := testSubscriber("http://match", domain.EventSessionCompleted)
	matching.Condition = `session.status == "completed" && agent_id == "agent-1"`
	rejecting := testSubscriber("http://reject", domain.EventSessionCompleted)
	rejecting.Condition = `session.score > 90`
	broken := testSubscriber("http://broken", domain.EventSessionCompleted)
	broken.Condition = `session.status ==`

	resolver := NewTriggerResolver(memory.NewSubscriberStore(always, matching, rejecting, broken), conditions, metrics, newTestLogger())
	envelope := domain.NewEnvelope(domain.Event{
		Name: domain.EventSessionCompleted,
		Data: domain.EventData{Session: map[string]any{"status": "completed", "score": 42}},
	})

	got, err := resolver.Resolve(context.Background(), domain.EventSessionCompleted, strPtr("agent-1"), envelope)

	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{always.ID, matching.ID}, subscriberIDs(got))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ConditionErrorsTotal))
}

func TestConditionEvaluator(t *testing.T) {
	c, err := NewConditionEvaluator(2)
	require.NoError(t, err)

	env := ConditionEnv(domain.Envelope{
		Event: domain.EventFieldCollected,
		Data:  domain.EventData{Session: map[string]any{"field": "email"}},
	}, nil)

	ok, err := c.Evaluate("", env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Evaluate(`event == "field_collected" && session.field == "email"`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Evaluate(`agent_id != ""`, env)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Evaluate(`session.field + 1`, env)
	assert.Error(t, err, "non-boolean expressions are rejected")

	_, _ = c.Evaluate(`event == "a"`, env)
	_, _ = c.Evaluate(`event == "b"`, env)
	assert.LessOrEqual(t, c.Cached(), 2, "cache is bounded")
}
