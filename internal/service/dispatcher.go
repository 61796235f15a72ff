package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/observability"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrDispatchBusy is returned by DispatchAsync when MaxPendingEvents events
// are already in flight.
var ErrDispatchBusy = errors.New("too many events pending dispatch")

// DispatcherConfig tunes the fan-out.
type DispatcherConfig struct {
	// MaxConcurrentChains bounds running chains across every event.
	MaxConcurrentChains int
	// MaxPendingEvents bounds DispatchAsync events that have not finished.
	MaxPendingEvents int
	DedupeTTL        time.Duration
}

// FanOutDispatcher implements ports.Dispatcher.
type FanOutDispatcher struct {
	resolver *TriggerResolver
	driver   *RetryDriver
	deduper  ports.EventDeduper // nil disables de-duplication
	metrics  *observability.Metrics
	cfg      DispatcherConfig
	log      zerolog.Logger

	chains   *semaphore.Weighted
	pending  *semaphore.Weighted
	inflight sync.WaitGroup
}

// NewFanOutDispatcher creates a dispatcher. deduper may be nil.
func NewFanOutDispatcher(
	resolver *TriggerResolver,
	driver *RetryDriver,
	deduper ports.EventDeduper,
	metrics *observability.Metrics,
	cfg DispatcherConfig,
	log zerolog.Logger,
) *FanOutDispatcher {
	if cfg.MaxConcurrentChains < 1 {
		cfg.MaxConcurrentChains = 16
	}
	if cfg.MaxPendingEvents < 1 {
		cfg.MaxPendingEvents = 1000
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	return &FanOutDispatcher{
		resolver: resolver,
		driver:   driver,
		deduper:  deduper,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
		chains:   semaphore.NewWeighted(int64(cfg.MaxConcurrentChains)),
		pending:  semaphore.NewWeighted(int64(cfg.MaxPendingEvents)),
	}
}

// Dispatch delivers event to every eligible subscriber and returns one outcome
// per subscriber once every chain is terminal or scheduled. Only resolution
// errors are returned; chain failures are reported on the outcomes.
func (d *FanOutDispatcher) Dispatch(ctx context.Context, event domain.Event) ([]domain.DeliveryOutcome, error) {
	if event.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}

	log := d.log.With().Str("event", event.Name).Logger()
	if event.ID != "" {
		log = log.With().Str("event_id", event.ID).Logger()
	}

	envelope := domain.NewEnvelope(event)
	subs, err := d.resolver.Resolve(ctx, event.Name, event.AgentID, envelope)
	if err != nil {
		return nil, err
	}

	// serialized once; every subscriber is signed over and sent these bytes
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	// marked only once the event can be delivered, so a producer retry after
	// a resolution error is not mistaken for a duplicate
	if d.deduper != nil && event.ID != "" {
		first, err := d.deduper.FirstSeen(ctx, event.Name+":"+event.ID, d.cfg.DedupeTTL)
		if err != nil {
			log.Warn().Err(err).Msg("dedupe check failed, dispatching anyway")
		} else if !first {
			d.metrics.EventDuplicate()
			log.Info().Msg("duplicate event ignored")
			return []domain.DeliveryOutcome{}, nil
		}
	}
	d.metrics.EventReceived(event.Name)

	if len(subs) == 0 {
		log.Debug().Msg("no subscribers for event")
		return []domain.DeliveryOutcome{}, nil
	}

	outcomes := make([]domain.DeliveryOutcome, len(subs))
	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrentChains)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			if err := d.chains.Acquire(ctx, 1); err != nil {
				outcomes[i] = domain.DeliveryOutcome{SubscriberID: sub.ID, Error: "cancelled before delivery"}
				return nil
			}
			defer d.chains.Release(1)
			outcomes[i] = d.driver.Run(ctx, sub, event.Name, event.CorrelationID, body)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	log.Info().
		Int("subscribers", len(subs)).
		Int("succeeded", succeeded).
		Msg("event dispatched")

	return outcomes, nil
}

// DispatchAsync runs Dispatch detached from ctx so deliveries outlive the caller.
// It returns ErrDispatchBusy without dispatching when the pending queue is full.
func (d *FanOutDispatcher) DispatchAsync(ctx context.Context, event domain.Event) error {
	if !d.pending.TryAcquire(1) {
		d.metrics.EventRejected()
		d.log.Warn().Str("event", event.Name).Int("max_pending", d.cfg.MaxPendingEvents).Msg("dispatch queue full, event rejected")
		return ErrDispatchBusy
	}

	detached := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer d.pending.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.log.Error().Interface("panic", r).Str("event", event.Name).Msg("panic in async dispatch")
			}
		}()
		if _, err := d.Dispatch(detached, event); err != nil {
			d.log.Error().Err(err).Str("event", event.Name).Msg("async dispatch failed")
		}
	}()
	return nil
}

// Wait blocks until every DispatchAsync call has finished or ctx is done.
func (d *FanOutDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
