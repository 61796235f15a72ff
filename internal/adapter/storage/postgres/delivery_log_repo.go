package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

const deliveryColumns = `id, subscriber_id, chain_id, event, correlation_id, status, attempt,
	response_status, response_body, response_headers, error_kind, error_message,
	request_body, request_headers, started_at, completed_at, duration_ms, will_retry, next_retry_at`

// DeliveryLogRepo implements ports.DeliveryLogStore and ports.DeliveryLogReader.
// Rows are append-only.
type DeliveryLogRepo struct {
	pool Pool
}

// NewDeliveryLogRepo creates a new DeliveryLogRepo.
func NewDeliveryLogRepo(pool Pool) *DeliveryLogRepo {
	return &DeliveryLogRepo{pool: pool}
}

// RecordDeliveryAttempt inserts one attempt and returns it.
func (r *DeliveryLogRepo) RecordDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) (*domain.DeliveryAttempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	respHeaders, err := marshalHeaders(a.ResponseHeaders)
	if err != nil {
		return nil, fmt.Errorf("encode response headers: %w", err)
	}
	reqHeaders, err := marshalHeaders(a.RequestHeaders)
	if err != nil {
		return nil, fmt.Errorf("encode request headers: %w", err)
	}

	query := `INSERT INTO webhook_delivery_attempts (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.SubscriberID, a.ChainID, a.Event, a.CorrelationID, string(a.Status), a.Attempt,
		a.ResponseStatus, a.ResponseBody, respHeaders, string(a.ErrorKind), a.ErrorMessage,
		a.RequestBody, reqHeaders, a.StartedAt, a.CompletedAt, a.DurationMs, a.WillRetry, a.NextRetryAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert delivery attempt: %w", err)
	}
	return a, nil
}

// ListBySubscriber returns up to limit attempts, newest first.
func (r *DeliveryLogRepo) ListBySubscriber(ctx context.Context, subscriberID uuid.UUID, limit int) ([]domain.DeliveryAttempt, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM webhook_delivery_attempts
		WHERE subscriber_id = $1
		ORDER BY started_at DESC, attempt DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.DeliveryAttempt, 0)
	for rows.Next() {
		var (
			a           domain.DeliveryAttempt
			status      string
			errorKind   string
			respHeaders []byte
			reqHeaders  []byte
		)
		if err := rows.Scan(
			&a.ID, &a.SubscriberID, &a.ChainID, &a.Event, &a.CorrelationID, &status, &a.Attempt,
			&a.ResponseStatus, &a.ResponseBody, &respHeaders, &errorKind, &a.ErrorMessage,
			&a.RequestBody, &reqHeaders, &a.StartedAt, &a.CompletedAt, &a.DurationMs, &a.WillRetry, &a.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		a.Status = domain.DeliveryStatus(status)
		a.ErrorKind = domain.ErrorKind(errorKind)
		if err := unmarshalHeaders(respHeaders, &a.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("decode response headers: %w", err)
		}
		if err := unmarshalHeaders(reqHeaders, &a.RequestHeaders); err != nil {
			return nil, fmt.Errorf("decode request headers: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return attempts, nil
}

func marshalHeaders(h map[string]string) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

func unmarshalHeaders(raw []byte, dst *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
