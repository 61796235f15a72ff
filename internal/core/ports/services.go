package ports

import (
	"context"
	"net/http"
	"time"

	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// EncryptionService handles subscriber secret encryption at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Signer produces authentication headers over the exact body bytes sent.
type Signer interface {
	Sign(sub *domain.Subscriber, body []byte) (http.Header, error)
}

// DeliveryRequest is one fully-signed outbound request.
type DeliveryRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// DeliveryResult is the structured outcome of one HTTP attempt.
type DeliveryResult struct {
	StatusCode      int
	ResponseHeaders map[string]string
	ResponseBody    string
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	ErrorKind       domain.ErrorKind
	Err             error
}

// Success is true for a 2xx-3xx status with no transport error.
func (r DeliveryResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 400
}

// DeliveryExecutor performs exactly one network attempt.
type DeliveryExecutor interface {
	Execute(ctx context.Context, req DeliveryRequest) DeliveryResult
}

// TokenService validates service tokens presented to the API.
type TokenService interface {
	Generate(subject string, workspaceID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject     string
	WorkspaceID uuid.UUID
}

// --- Service Ports (Business Logic) ---

// Dispatcher fans a lifecycle event out to every eligible subscriber.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) ([]domain.DeliveryOutcome, error)
	// DispatchAsync returns immediately; deliveries continue detached from ctx.
	// It fails fast when too many events are already pending.
	DispatchAsync(ctx context.Context, event domain.Event) error
}

// DeliveryService exposes operator actions on a single subscriber.
type DeliveryService interface {
	TestDelivery(ctx context.Context, subscriberID uuid.UUID) (*domain.TestDeliveryResult, error)
	ListDeliveries(ctx context.Context, subscriberID uuid.UUID, limit int) ([]domain.DeliveryAttempt, error)
}
