package service

import (
	"context"
	"sync"
	"time"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RetryWorkerConfig tunes the durable retry poller.
type RetryWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

// RetryWorker claims due retry tasks and resumes their chains.
type RetryWorker struct {
	queue  ports.RetryQueue
	driver *RetryDriver
	cfg    RetryWorkerConfig
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetryWorker creates a worker. Call Start to begin polling.
func NewRetryWorker(queue ports.RetryQueue, driver *RetryDriver, cfg RetryWorkerConfig, log zerolog.Logger) *RetryWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	return &RetryWorker{queue: queue, driver: driver, cfg: cfg, log: log}
}

// Start launches the polling loop. It is a no-op if already running.
func (w *RetryWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)
	w.log.Info().Dur("poll_interval", w.cfg.PollInterval).Int("batch_size", w.cfg.BatchSize).Msg("retry worker started")
}

// Stop ends polling and waits for in-flight chains to finish.
func (w *RetryWorker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Info().Msg("retry worker stopped")
}

func (w *RetryWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll claims one batch of due tasks and resumes them. It returns the number
// of tasks processed and blocks until their chains are terminal or rescheduled.
// A task is acknowledged only after its attempt has been handled; otherwise its
// lease expires and another poll picks it up again.
func (w *RetryWorker) Poll(ctx context.Context) int {
	tasks, err := w.queue.ClaimDue(ctx, time.Now(), w.cfg.BatchSize)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Int("claimed", len(tasks)).Msg("failed to claim due retries")
	}
	if len(tasks) == 0 {
		return 0
	}

	// claimed tasks run to completion even when the worker is stopping
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			w.resume(runCtx, task)
			return nil
		})
	}
	_ = g.Wait()
	return len(tasks)
}

func (w *RetryWorker) resume(ctx context.Context, task domain.RetryTask) {
	log := w.log.With().
		Str("task_id", task.ID.String()).
		Str("subscriber_id", task.SubscriberID.String()).
		Int("attempt", task.Attempt).
		Logger()

	handled := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic resuming retry")
			return
		}
		if !handled {
			return
		}
		if err := w.queue.Ack(ctx, task.ID); err != nil {
			log.Error().Err(err).Msg("failed to acknowledge retry task")
		}
	}()

	out, err := w.driver.Resume(ctx, task)
	if err != nil {
		log.Warn().Err(err).Msg("retry task left for reclaim")
		return
	}
	handled = true
	log.Debug().
		Bool("success", out.Success).
		Bool("scheduled", out.Scheduled).
		Msg("retry task processed")
}
