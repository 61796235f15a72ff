package service

import (
	"context"
	"fmt"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/observability"

	"github.com/rs/zerolog"
)

// TriggerResolver selects the subscribers eligible for an event.
type TriggerResolver struct {
	repo       ports.SubscriberRepository
	conditions *ConditionEvaluator // nil disables conditions
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// NewTriggerResolver creates a resolver. conditions may be nil.
func NewTriggerResolver(repo ports.SubscriberRepository, conditions *ConditionEvaluator, metrics *observability.Metrics, log zerolog.Logger) *TriggerResolver {
	return &TriggerResolver{
		repo:       repo,
		conditions: conditions,
		metrics:    metrics,
		log:        log,
	}
}

// Resolve returns enabled, active subscribers that list the event as a trigger
// and whose agent scope matches. A nil agentID matches only global subscribers.
// The result order is unspecified.
func (r *TriggerResolver) Resolve(ctx context.Context, event string, agentID *string, envelope domain.Envelope) ([]domain.Subscriber, error) {
	candidates, err := r.repo.ListByTrigger(ctx, event, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers for %s: %w", event, err)
	}

	var env map[string]any
	eligible := make([]domain.Subscriber, 0, len(candidates))
	for i := range candidates {
		sub := &candidates[i]
		if !sub.Eligible(event, agentID) {
			continue
		}
		if sub.Condition != "" && r.conditions != nil {
			if env == nil {
				env = ConditionEnv(envelope, agentID)
			}
			ok, err := r.conditions.Evaluate(sub.Condition, env)
			if err != nil {
				r.metrics.ConditionError()
				r.log.Warn().Err(err).
					Str("subscriber_id", sub.ID.String()).
					Str("condition", sub.Condition).
					Msg("subscriber condition failed, skipping subscriber")
				continue
			}
			if !ok {
				continue
			}
		}
		eligible = append(eligible, *sub)
	}
	return eligible, nil
}
