package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// AuthScheme selects how outbound requests to a subscriber are authenticated.
type AuthScheme string

const (
	AuthSchemeNone   AuthScheme = "none"
	AuthSchemeBearer AuthScheme = "bearer"
	AuthSchemeBasic  AuthScheme = "basic"
	AuthSchemeHMAC   AuthScheme = "hmac"
)

// RequiresSecret reports whether the scheme cannot be applied without a secret.
func (a AuthScheme) RequiresSecret() bool {
	switch a {
	case AuthSchemeBearer, AuthSchemeBasic, AuthSchemeHMAC:
		return true
	default:
		return false
	}
}

// SubscriberStatus is the lifecycle state managed by the authoring surface.
type SubscriberStatus string

const (
	SubscriberStatusActive  SubscriberStatus = "active"
	SubscriberStatusPaused  SubscriberStatus = "paused"
	SubscriberStatusDeleted SubscriberStatus = "deleted"
)

// BackoffKind selects the wait growth between retry attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffLinear      BackoffKind = "linear"
)

// RetryPolicy configures a subscriber's retry chain.
type RetryPolicy struct {
	MaxRetries     int         `json:"max_retries"`
	Backoff        BackoffKind `json:"backoff"`
	InitialDelayMs int         `json:"initial_delay_ms"`
}

// DefaultRetryPolicy is applied when a subscriber carries no usable policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		Backoff:        BackoffExponential,
		InitialDelayMs: 1000,
	}
}

// Validate checks MaxRetries >= 0, InitialDelayMs > 0 and a known backoff kind.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialDelayMs <= 0 {
		return fmt.Errorf("initial_delay_ms must be > 0, got %d", p.InitialDelayMs)
	}
	switch p.Backoff {
	case BackoffExponential, BackoffLinear:
		return nil
	default:
		return fmt.Errorf("unknown backoff kind %q", p.Backoff)
	}
}

// MaxAttempts is the total number of tries a chain may make.
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Subscriber is a configured outbound webhook.
type Subscriber struct {
	ID                 uuid.UUID         `json:"id"`
	WorkspaceID        uuid.UUID         `json:"workspace_id"`
	Name               string            `json:"name"`
	URL                string            `json:"url"`
	Method             string            `json:"method"`
	Headers            map[string]string `json:"headers,omitempty"`
	AuthScheme         AuthScheme        `json:"auth_scheme"`
	AuthSecret         string            `json:"-"` // encrypted when a master key is configured
	Retry              RetryPolicy       `json:"retry"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute"`
	Enabled            bool              `json:"enabled"`
	Status             SubscriberStatus  `json:"status"`
	Triggers           []string          `json:"triggers"`
	AgentID            *string           `json:"agent_id,omitempty"` // nil = global
	Condition          string            `json:"condition,omitempty"`
	LastDeliveryStatus *DeliveryStatus   `json:"last_delivery_status,omitempty"`
	LastSuccessAt      *time.Time        `json:"last_success_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// IsGlobal returns true if the subscriber receives events for every agent.
func (s *Subscriber) IsGlobal() bool {
	return s.AgentID == nil || *s.AgentID == ""
}

// IsDeliverable returns true if the subscriber is enabled and active.
func (s *Subscriber) IsDeliverable() bool {
	return s.Enabled && s.Status == SubscriberStatusActive
}

// HasTrigger reports whether the subscriber opted into the event.
func (s *Subscriber) HasTrigger(event string) bool {
	return slices.Contains(s.Triggers, event)
}

// MatchesAgent applies agent scoping. A nil agentID only matches global subscribers.
func (s *Subscriber) MatchesAgent(agentID *string) bool {
	if s.IsGlobal() {
		return true
	}
	if agentID == nil {
		return false
	}
	return *s.AgentID == *agentID
}

// Eligible combines every resolver rule except the optional condition.
func (s *Subscriber) Eligible(event string, agentID *string) bool {
	return s.IsDeliverable() && s.HasTrigger(event) && s.MatchesAgent(agentID)
}

// HTTPMethod returns the configured method, defaulting to POST.
func (s *Subscriber) HTTPMethod() string {
	if s.Method == "" {
		return "POST"
	}
	return s.Method
}
