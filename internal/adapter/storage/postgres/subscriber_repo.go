package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const subscriberColumns = `id, workspace_id, name, url, method, headers, auth_scheme, auth_secret,
	retry_policy, rate_limit_per_minute, enabled, status, triggers, agent_id, condition,
	last_delivery_status, last_success_at, created_at, updated_at`

// SubscriberRepo implements ports.SubscriberRepository and ports.SubscriberStatusStore.
// Subscriber rows are written by the authoring surface; the engine only
// updates last_delivery_status and last_success_at.
type SubscriberRepo struct {
	pool Pool
}

// NewSubscriberRepo creates a new SubscriberRepo.
func NewSubscriberRepo(pool Pool) *SubscriberRepo {
	return &SubscriberRepo{pool: pool}
}

// ListByTrigger returns enabled, active subscribers for event. A nil agentID
// only matches global subscribers. An empty agent_id is global, the same as NULL.
func (r *SubscriberRepo) ListByTrigger(ctx context.Context, event string, agentID *string) ([]domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + `
		FROM webhook_subscribers
		WHERE enabled AND status = 'active'
		  AND $1 = ANY(triggers)
		  AND (NULLIF(agent_id, '') IS NULL OR agent_id = $2)`

	rows, err := r.pool.Query(ctx, query, event, agentID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers by trigger: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}

// GetByID fetches a subscriber. Returns nil, nil if it does not exist.
func (r *SubscriberRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM webhook_subscribers WHERE id = $1`

	s, err := scanSubscriber(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscriber by id: %w", err)
	}
	return s, nil
}

// UpdateDeliveryStatus sets last_delivery_status and, when successAt is set,
// last_success_at in a single statement.
func (r *SubscriberRepo) UpdateDeliveryStatus(ctx context.Context, subscriberID uuid.UUID, status domain.DeliveryStatus, successAt *time.Time) error {
	query := `UPDATE webhook_subscribers
		SET last_delivery_status = $2,
		    last_success_at = COALESCE($3, last_success_at),
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, subscriberID, string(status), successAt); err != nil {
		return fmt.Errorf("update subscriber delivery status: %w", err)
	}
	return nil
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var (
		s          domain.Subscriber
		headers    []byte
		retry      []byte
		authScheme string
		status     string
		lastStatus *string
	)
	err := row.Scan(
		&s.ID, &s.WorkspaceID, &s.Name, &s.URL, &s.Method, &headers, &authScheme, &s.AuthSecret,
		&retry, &s.RateLimitPerMinute, &s.Enabled, &status, &s.Triggers, &s.AgentID, &s.Condition,
		&lastStatus, &s.LastSuccessAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.AgentID != nil && *s.AgentID == "" {
		s.AgentID = nil
	}
	s.AuthScheme = domain.AuthScheme(authScheme)
	s.Status = domain.SubscriberStatus(status)
	if lastStatus != nil {
		ds := domain.DeliveryStatus(*lastStatus)
		s.LastDeliveryStatus = &ds
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &s.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	s.Retry = domain.DefaultRetryPolicy()
	if len(retry) > 0 {
		if err := json.Unmarshal(retry, &s.Retry); err != nil {
			return nil, fmt.Errorf("decode retry policy: %w", err)
		}
	}
	return &s, nil
}
