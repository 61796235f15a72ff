package handler

import (
	"agentforms-webhooks/config"
	"agentforms-webhooks/internal/adapter/http/middleware"
	redisStore "agentforms-webhooks/internal/adapter/storage/redis"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Dispatcher     ports.Dispatcher
	DeliverySvc    ports.DeliveryService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimit      config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	Metrics        *observability.Metrics // nil = /metrics disabled
	MetricsPath    string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.GinMiddleware())
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, deps.Metrics.Handler())
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.RateLimitRules(deps.RateLimit)
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok || rule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	eventHandler := NewEventHandler(deps.Dispatcher)
	v1.POST("/events", rl("events"), eventHandler.Publish)

	webhookHandler := NewWebhookHandler(deps.DeliverySvc)
	webhooks := v1.Group("/webhooks/:id")
	{
		webhooks.POST("/test", rl("webhooks_test"), webhookHandler.Test)
		webhooks.GET("/deliveries", rl("deliveries"), webhookHandler.ListDeliveries)
	}

	return r
}
