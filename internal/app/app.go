// Package app wires configuration, storage, services and the HTTP surface
// into a runnable webhook engine.
package app

import (
	"context"
	"errors"
	"fmt"

	"agentforms-webhooks/config"
	httpHandler "agentforms-webhooks/internal/adapter/http/handler"
	"agentforms-webhooks/internal/adapter/storage/memory"
	pgStorage "agentforms-webhooks/internal/adapter/storage/postgres"
	redisStorage "agentforms-webhooks/internal/adapter/storage/redis"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/observability"
	"agentforms-webhooks/internal/service"
	"agentforms-webhooks/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App is a fully wired engine.
type App struct {
	Router     *gin.Engine
	Dispatcher *service.FanOutDispatcher
	Deliveries ports.DeliveryService
	Tokens     *service.JWTTokenService
	Metrics    *observability.Metrics

	// MemorySubscribers is set when storage.driver is memory.
	MemorySubscribers *memory.SubscriberStore

	worker  *service.RetryWorker
	closers []func()
	log     zerolog.Logger
}

type storage struct {
	subscribers ports.SubscriberRepository
	status      ports.SubscriberStatusStore
	logStore    ports.DeliveryLogStore
	logReader   ports.DeliveryLogReader
	health      []ports.HealthChecker
}

// New connects to the configured backends and builds every component.
// Call Shutdown to release them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{log: log}
	if err := a.build(ctx, cfg); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	store, err := a.openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		rdb       *goredis.Client
		limiter   ports.DeliveryLimiter = memory.NewLimiter()
		deduper   ports.EventDeduper    = memory.NewDeduper()
		queue     ports.RetryQueue
		apiLimits *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, a.log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		apiLimits = redisStorage.NewRateLimitStore(rdb)
		limiter = redisStorage.NewSubscriberLimiter(apiLimits)
		deduper = redisStorage.NewDedupeStore(rdb)
		store.health = append(store.health, redisStorage.NewHealthCheck(rdb))
		if cfg.Webhook.RetryMode == config.RetryModeDurable {
			queue = redisStorage.NewRetryQueue(rdb, cfg.Webhook.RetryLease, logger.Component(a.log, "retry_queue"))
		}
	}

	var signer *service.WebhookSigner
	if cfg.Secrets.MasterKey != "" {
		encSvc, err := service.NewAESEncryptionService(cfg.Secrets.MasterKey)
		if err != nil {
			return fmt.Errorf("initializing secret encryption: %w", err)
		}
		signer = service.NewWebhookSigner(encSvc)
	} else {
		a.log.Warn().Msg("secrets.master_key not set, subscriber secrets are read as plaintext")
		signer = service.NewWebhookSigner(nil)
	}

	executor := service.NewHTTPExecutor(service.NewHTTPClient(), service.ExecutorConfig{
		Timeout:              cfg.Webhook.RequestTimeout,
		MaxResponseBodyChars: cfg.Webhook.MaxResponseBodyChars,
		UserAgent:            cfg.Webhook.UserAgent,
	})

	conditions, err := service.NewConditionEvaluator(cfg.Webhook.ConditionCacheSize)
	if err != nil {
		return err
	}

	driver := service.NewRetryDriver(signer, executor, store.logStore, store.status, service.RetryDriverOptions{
		Subscribers: store.subscribers,
		Queue:       queue,
		Limiter:     limiter,
		Metrics:     a.Metrics,
	}, logger.Component(a.log, "retry_driver"))

	resolver := service.NewTriggerResolver(store.subscribers, conditions, a.Metrics, logger.Component(a.log, "resolver"))
	a.Dispatcher = service.NewFanOutDispatcher(resolver, driver, deduper, a.Metrics, service.DispatcherConfig{
		MaxConcurrentChains: cfg.Webhook.MaxConcurrentChains,
		MaxPendingEvents:    cfg.Webhook.MaxPendingEvents,
		DedupeTTL:           cfg.Webhook.DedupeTTL,
	}, logger.Component(a.log, "dispatcher"))

	a.Deliveries = service.NewDeliveryService(store.subscribers, store.logReader, driver, logger.Component(a.log, "deliveries"))

	if queue != nil {
		a.worker = service.NewRetryWorker(queue, driver, service.RetryWorkerConfig{
			PollInterval: cfg.Webhook.RetryPollInterval,
			BatchSize:    cfg.Webhook.RetryBatchSize,
			Concurrency:  cfg.Webhook.MaxConcurrentChains,
		}, logger.Component(a.log, "retry_worker"))
	}

	a.Tokens = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	a.Router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		Dispatcher:     a.Dispatcher,
		DeliverySvc:    a.Deliveries,
		TokenSvc:       a.Tokens,
		RateLimitStore: apiLimits,
		RateLimit:      cfg.RateLimit,
		HealthCheckers: store.health,
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         logger.Component(a.log, "http"),
	})

	a.log.Info().
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Str("retry_mode", cfg.Webhook.RetryMode).
		Msg("webhook engine initialized")
	return nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		subs := memory.NewSubscriberStore()
		logs := memory.NewDeliveryLog()
		a.MemorySubscribers = subs
		return &storage{subscribers: subs, status: subs, logStore: logs, logReader: logs}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	subs := pgStorage.NewSubscriberRepo(pool)
	logs := pgStorage.NewDeliveryLogRepo(pool)
	return &storage{
		subscribers: subs,
		status:      subs,
		logStore:    logs,
		logReader:   logs,
		health:      []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
	}, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	if a.worker != nil {
		a.worker.Start(ctx)
	}
}

// Shutdown stops the retry worker, waits for in-flight dispatches until ctx
// is done, then closes backend connections.
func (a *App) Shutdown(ctx context.Context) error {
	if a.worker != nil {
		a.worker.Stop()
	}
	err := a.Dispatcher.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		a.log.Warn().Msg("shutdown deadline reached with dispatches in flight")
	}
	a.close()
	return err
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
