package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outbound delivery headers.
const (
	HeaderEvent    = "X-Webhook-Event"
	HeaderDelivery = "X-Webhook-Delivery"

	redactedValue = "[REDACTED]"
)

// Chain results reported to metrics.
const (
	chainSuccess   = "success"
	chainFailed    = "failed"
	chainScheduled = "scheduled"
)

var envPlaceholder = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// RetryDriverOptions carries optional collaborators.
type RetryDriverOptions struct {
	// Subscribers reloads subscribers when a durable task resumes.
	Subscribers ports.SubscriberRepository
	// Queue switches the driver to durable mode when set.
	Queue ports.RetryQueue
	// Limiter enforces per-subscriber delivery budgets when set.
	Limiter ports.DeliveryLimiter
	// ReloadRetryDelay postpones a resumed task whose subscriber could not be
	// loaded. Defaults to 5s.
	ReloadRetryDelay time.Duration
	Metrics          *observability.Metrics
}

// RetryDriver runs a subscriber's delivery chain: sign, execute, record,
// update status, back off, repeat.
type RetryDriver struct {
	signer      ports.Signer
	executor    ports.DeliveryExecutor
	logStore    ports.DeliveryLogStore
	statusStore ports.SubscriberStatusStore
	subscribers ports.SubscriberRepository
	queue       ports.RetryQueue
	limiter     ports.DeliveryLimiter
	reloadDelay time.Duration
	metrics     *observability.Metrics
	log         zerolog.Logger
}

// NewRetryDriver creates a retry driver.
func NewRetryDriver(
	signer ports.Signer,
	executor ports.DeliveryExecutor,
	logStore ports.DeliveryLogStore,
	statusStore ports.SubscriberStatusStore,
	opts RetryDriverOptions,
	log zerolog.Logger,
) *RetryDriver {
	if opts.ReloadRetryDelay <= 0 {
		opts.ReloadRetryDelay = 5 * time.Second
	}
	return &RetryDriver{
		signer:      signer,
		executor:    executor,
		logStore:    logStore,
		statusStore: statusStore,
		subscribers: opts.Subscribers,
		queue:       opts.Queue,
		limiter:     opts.Limiter,
		reloadDelay: opts.ReloadRetryDelay,
		metrics:     opts.Metrics,
		log:         log,
	}
}

// Durable reports whether pending retries are handed to the retry queue.
func (d *RetryDriver) Durable() bool {
	return d.queue != nil
}

type chain struct {
	id            uuid.UUID
	sub           *domain.Subscriber
	event         string
	correlationID *string
	body          []byte
}

// Run starts a new chain at attempt 1. It never returns an error: every
// failure ends up in the delivery log and on the outcome.
func (d *RetryDriver) Run(ctx context.Context, sub *domain.Subscriber, event string, correlationID *string, body []byte) domain.DeliveryOutcome {
	c := chain{
		id:            uuid.New(),
		sub:           sub,
		event:         event,
		correlationID: correlationID,
		body:          body,
	}
	return d.run(ctx, c, 1)
}

// ErrResumeDeferred is returned by Resume when a task could neither run nor be
// rescheduled. The caller must leave the task claimable.
var ErrResumeDeferred = errors.New("retry task deferred")

// Resume continues a chain from a durable retry task. A subscriber that is
// gone or no longer deliverable ends the chain. A repository error reschedules
// the same attempt after the reload delay.
func (d *RetryDriver) Resume(ctx context.Context, task domain.RetryTask) (domain.DeliveryOutcome, error) {
	c := chain{
		id:            task.ChainID,
		sub:           &domain.Subscriber{ID: task.SubscriberID},
		event:         task.Event,
		correlationID: task.CorrelationID,
		body:          task.Body,
	}
	log := d.log.With().
		Str("subscriber_id", task.SubscriberID.String()).
		Str("chain_id", task.ChainID.String()).
		Int("attempt", task.Attempt).
		Logger()

	if d.subscribers == nil {
		return domain.DeliveryOutcome{SubscriberID: task.SubscriberID}, fmt.Errorf("%w: no subscriber repository configured", ErrResumeDeferred)
	}

	sub, err := d.subscribers.GetByID(ctx, task.SubscriberID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load subscriber for retry, rescheduling")
		out := domain.DeliveryOutcome{SubscriberID: task.SubscriberID, Attempts: task.Attempt - 1}
		if d.queue != nil && d.schedule(ctx, c, task.Attempt, time.Now().Add(d.reloadDelay), log) {
			out.Scheduled = true
			return out, nil
		}
		return out, fmt.Errorf("%w: loading subscriber: %v", ErrResumeDeferred, err)
	}

	if sub == nil || !sub.IsDeliverable() {
		reason := "subscriber no longer active"
		if sub != nil {
			c.sub = sub
		}
		log.Warn().Msg("retry dropped: " + reason)

		now := time.Now()
		entry := d.newEntry(c, task.Attempt, nil)
		entry.StartedAt, entry.CompletedAt = now, now
		entry.Status = domain.DeliveryStatusFailed
		entry.ErrorKind = domain.ErrorKindConfiguration
		entry.ErrorMessage = &reason
		d.record(ctx, entry)
		d.metrics.ChainStarted()
		d.metrics.ChainFinished(chainFailed)
		return domain.DeliveryOutcome{SubscriberID: task.SubscriberID, Attempts: task.Attempt, Error: reason}, nil
	}

	c.sub = sub
	return d.run(ctx, c, task.Attempt), nil
}

// DeliverOnce performs a single attempt with no retry and no rate limit.
// It records the entry and updates subscriber status like any other attempt.
func (d *RetryDriver) DeliverOnce(ctx context.Context, sub *domain.Subscriber, event string, body []byte) (*domain.DeliveryAttempt, ports.DeliveryResult) {
	c := chain{id: uuid.New(), sub: sub, event: event, body: body}
	entry, res := d.attempt(ctx, c, 1)
	if res.Success() {
		entry.Status = domain.DeliveryStatusSuccess
	} else {
		entry.Status = domain.DeliveryStatusFailed
	}
	return d.finish(ctx, c, entry, res), res
}

func (d *RetryDriver) run(ctx context.Context, c chain, attempt int) domain.DeliveryOutcome {
	d.metrics.ChainStarted()

	log := d.log.With().
		Str("subscriber_id", c.sub.ID.String()).
		Str("chain_id", c.id.String()).
		Str("event", c.event).
		Logger()

	policy := c.sub.Retry
	if err := policy.Validate(); err != nil {
		log.Warn().Err(err).Msg("invalid retry policy, delivering without retries")
		policy = domain.RetryPolicy{MaxRetries: 0, Backoff: domain.BackoffExponential, InitialDelayMs: 1000}
	}
	maxAttempts := policy.MaxAttempts()

	out := domain.DeliveryOutcome{SubscriberID: c.sub.ID}
	for {
		if wait, deferred := d.gate(ctx, c.sub, log); deferred {
			d.metrics.RateLimited()
			out.Attempts = attempt - 1
			if d.queue != nil {
				if d.schedule(ctx, c, attempt, time.Now().Add(wait), log) {
					out.Scheduled = true
					d.metrics.ChainFinished(chainScheduled)
					return out
				}
			}
			log.Debug().Int("attempt", attempt).Dur("wait", wait).Msg("rate limited, waiting for budget")
			if err := sleepCtx(ctx, wait); err != nil {
				out.Error = "cancelled while rate limited"
				d.metrics.ChainFinished(chainFailed)
				return out
			}
			continue
		}

		entry, res := d.attempt(ctx, c, attempt)
		out.Attempts = attempt

		switch {
		case res.Success():
			entry.Status = domain.DeliveryStatusSuccess
			d.finish(ctx, c, entry, res)
			log.Info().Int("attempt", attempt).Int("status", res.StatusCode).Msg("webhook delivered")
			out.Success = true
			out.Error = ""
			d.metrics.ChainFinished(chainSuccess)
			return out

		case res.ErrorKind == domain.ErrorKindConfiguration:
			entry.Status = domain.DeliveryStatusFailed
			d.finish(ctx, c, entry, res)
			log.Error().Err(res.Err).Int("attempt", attempt).Msg("webhook misconfigured, not retrying")
			out.Error = failureMessage(res)
			d.metrics.ChainFinished(chainFailed)
			return out

		case attempt < maxAttempts:
			delay := BackoffDelay(attempt, policy)
			next := entry.CompletedAt.Add(delay)
			entry.Status = domain.DeliveryStatusFailed
			entry.WillRetry = true
			entry.NextRetryAt = &next
			d.finish(ctx, c, entry, res)
			out.Error = failureMessage(res)
			log.Warn().Err(res.Err).Int("attempt", attempt).Time("next_retry_at", next).Msg("webhook delivery failed, will retry")

			if d.queue != nil && d.schedule(ctx, c, attempt+1, next, log) {
				out.Scheduled = true
				d.metrics.ChainFinished(chainScheduled)
				return out
			}
			if err := sleepCtx(ctx, time.Until(next)); err != nil {
				if d.queue != nil && d.schedule(ctx, c, attempt+1, next, log) {
					out.Scheduled = true
					d.metrics.ChainFinished(chainScheduled)
					return out
				}
				log.Warn().Int("attempt", attempt).Msg("retry chain cancelled during backoff")
				d.metrics.ChainFinished(chainFailed)
				return out
			}
			attempt++

		default:
			entry.Status = domain.DeliveryStatusFailed
			d.finish(ctx, c, entry, res)
			log.Error().Err(res.Err).Int("attempt", attempt).Msg("webhook delivery failed, retries exhausted")
			out.Error = failureMessage(res)
			d.metrics.ChainFinished(chainFailed)
			return out
		}
	}
}

// gate asks the limiter for budget. Limiter errors fail open.
func (d *RetryDriver) gate(ctx context.Context, sub *domain.Subscriber, log zerolog.Logger) (time.Duration, bool) {
	if d.limiter == nil || sub.RateLimitPerMinute <= 0 {
		return 0, false
	}
	allowed, retryAt, err := d.limiter.Allow(ctx, sub.ID, sub.RateLimitPerMinute)
	if err != nil {
		log.Warn().Err(err).Msg("rate limit check failed, allowing delivery (degraded mode)")
		return 0, false
	}
	if allowed {
		return 0, false
	}
	wait := time.Until(retryAt)
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait, true
}

// attempt signs and executes attempt n. The returned entry is not yet recorded.
func (d *RetryDriver) attempt(ctx context.Context, c chain, n int) (*domain.DeliveryAttempt, ports.DeliveryResult) {
	headers := d.baseHeaders(c)

	authHeaders, err := d.signer.Sign(c.sub, c.body)
	if err != nil {
		now := time.Now()
		res := ports.DeliveryResult{
			StartedAt:   now,
			CompletedAt: now,
			ErrorKind:   domain.ErrorKindConfiguration,
			Err:         fmt.Errorf("signing request: %w", err),
		}
		return d.newEntryFromResult(c, n, headers, res), res
	}
	for k, vals := range authHeaders {
		headers[k] = vals
	}

	res := d.executor.Execute(ctx, ports.DeliveryRequest{
		Method:  c.sub.HTTPMethod(),
		URL:     c.sub.URL,
		Headers: headers,
		Body:    c.body,
	})
	return d.newEntryFromResult(c, n, headers, res), res
}

func (d *RetryDriver) baseHeaders(c chain) http.Header {
	h := http.Header{}
	for k, v := range c.sub.Headers {
		h.Set(k, resolveEnvPlaceholders(v))
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, c.event)
	h.Set(HeaderDelivery, c.id.String())
	return h
}

func (d *RetryDriver) newEntry(c chain, n int, headers map[string]string) *domain.DeliveryAttempt {
	return &domain.DeliveryAttempt{
		ID:             uuid.New(),
		SubscriberID:   c.sub.ID,
		ChainID:        c.id,
		Event:          c.event,
		CorrelationID:  c.correlationID,
		Status:         domain.DeliveryStatusPending,
		Attempt:        n,
		RequestBody:    string(c.body),
		RequestHeaders: headers,
	}
}

func (d *RetryDriver) newEntryFromResult(c chain, n int, headers http.Header, res ports.DeliveryResult) *domain.DeliveryAttempt {
	entry := d.newEntry(c, n, redactHeaders(headers))
	entry.StartedAt = res.StartedAt
	entry.CompletedAt = res.CompletedAt
	entry.DurationMs = res.Duration.Milliseconds()
	entry.ErrorKind = res.ErrorKind
	if res.StatusCode != 0 {
		code := res.StatusCode
		entry.ResponseStatus = &code
		body := res.ResponseBody
		entry.ResponseBody = &body
		entry.ResponseHeaders = res.ResponseHeaders
	}
	if !res.Success() {
		msg := failureMessage(res)
		entry.ErrorMessage = &msg
	}
	return entry
}

func failureMessage(res ports.DeliveryResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return fmt.Sprintf("HTTP %d", res.StatusCode)
}

// finish records the entry and updates the subscriber's status fields.
func (d *RetryDriver) finish(ctx context.Context, c chain, entry *domain.DeliveryAttempt, res ports.DeliveryResult) *domain.DeliveryAttempt {
	result := string(entry.Status)
	if res.ErrorKind != domain.ErrorKindNone {
		result = string(res.ErrorKind)
	}
	d.metrics.AttemptCompleted(c.event, result, res.Duration)

	recorded := d.record(ctx, entry)

	var successAt *time.Time
	if entry.Status == domain.DeliveryStatusSuccess {
		t := entry.CompletedAt
		successAt = &t
	}
	if c.sub.ID != uuid.Nil {
		// persisted even if the caller's context is gone
		if err := d.statusStore.UpdateDeliveryStatus(context.WithoutCancel(ctx), c.sub.ID, entry.Status, successAt); err != nil {
			d.metrics.RecorderError()
			d.log.Error().Err(err).Str("subscriber_id", c.sub.ID.String()).Msg("failed to update subscriber delivery status")
		}
	}
	return recorded
}

// record persists an entry. A recorder failure is logged and does not stop the chain.
func (d *RetryDriver) record(ctx context.Context, entry *domain.DeliveryAttempt) *domain.DeliveryAttempt {
	saved, err := d.logStore.RecordDeliveryAttempt(context.WithoutCancel(ctx), entry)
	if err != nil {
		d.metrics.RecorderError()
		d.log.Error().Err(err).
			Str("subscriber_id", entry.SubscriberID.String()).
			Int("attempt", entry.Attempt).
			Msg("failed to record delivery attempt")
		return entry
	}
	if saved == nil {
		return entry
	}
	return saved
}

func (d *RetryDriver) schedule(ctx context.Context, c chain, attempt int, due time.Time, log zerolog.Logger) bool {
	task := domain.RetryTask{
		ID:            uuid.New(),
		ChainID:       c.id,
		SubscriberID:  c.sub.ID,
		Event:         c.event,
		CorrelationID: c.correlationID,
		Body:          c.body,
		Attempt:       attempt,
		DueAt:         due,
	}
	if err := d.queue.Schedule(context.WithoutCancel(ctx), task); err != nil {
		log.Error().Err(err).Int("attempt", attempt).Msg("failed to schedule durable retry")
		return false
	}
	d.metrics.RetryScheduled()
	log.Debug().Int("attempt", attempt).Time("due_at", due).Msg("retry scheduled")
	return true
}

// redactHeaders flattens headers for the delivery log, masking credentials.
// Signatures are MACs over the body and stay visible for debugging.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		key := http.CanonicalHeaderKey(k)
		if key == HeaderAuthorization {
			out[key] = redactedValue
			continue
		}
		out[key] = strings.Join(v, ", ")
	}
	return out
}

func resolveEnvPlaceholders(v string) string {
	if !strings.Contains(v, "{{") {
		return v
	}
	return envPlaceholder.ReplaceAllStringFunc(v, func(m string) string {
		name := envPlaceholder.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
