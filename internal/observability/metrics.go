package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	EventsReceivedTotal     *prometheus.CounterVec
	EventsDuplicateTotal    prometheus.Counter
	EventsRejectedTotal     prometheus.Counter
	DeliveryAttemptsTotal   *prometheus.CounterVec
	DeliveryAttemptDuration *prometheus.HistogramVec
	DeliveryChainsTotal     *prometheus.CounterVec
	DeliveryChainsInFlight  prometheus.Gauge
	RetriesScheduledTotal   prometheus.Counter
	RateLimitedTotal        prometheus.Counter
	RecorderErrorsTotal     prometheus.Counter
	ConditionErrorsTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afw_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afw_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		EventsReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afw_events_received_total",
				Help: "Total number of lifecycle events handed to the dispatcher",
			},
			[]string{"event"},
		),
		EventsDuplicateTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_events_duplicate_total",
				Help: "Total number of events dropped as duplicates",
			},
		),
		EventsRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_events_rejected_total",
				Help: "Total number of events refused because too many were pending",
			},
		),
		DeliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afw_delivery_attempts_total",
				Help: "Total number of outbound HTTP delivery attempts",
			},
			[]string{"event", "result"},
		),
		DeliveryAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afw_delivery_attempt_duration_seconds",
				Help:    "Outbound delivery attempt duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"event"},
		),
		DeliveryChainsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afw_delivery_chains_total",
				Help: "Total number of retry chains by final state",
			},
			[]string{"result"},
		),
		DeliveryChainsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "afw_delivery_chains_in_flight",
				Help: "Number of retry chains currently running",
			},
		),
		RetriesScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_retries_scheduled_total",
				Help: "Total number of attempts handed to the durable retry queue",
			},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_delivery_rate_limited_total",
				Help: "Total number of attempts deferred by a subscriber rate limit",
			},
		),
		RecorderErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_delivery_log_errors_total",
				Help: "Total number of delivery log or status writes that failed",
			},
		),
		ConditionErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "afw_condition_errors_total",
				Help: "Total number of subscriber conditions that failed to compile or evaluate",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsReceivedTotal,
		m.EventsDuplicateTotal,
		m.EventsRejectedTotal,
		m.DeliveryAttemptsTotal,
		m.DeliveryAttemptDuration,
		m.DeliveryChainsTotal,
		m.DeliveryChainsInFlight,
		m.RetriesScheduledTotal,
		m.RateLimitedTotal,
		m.RecorderErrorsTotal,
		m.ConditionErrorsTotal,
	)

	return m
}

// EventReceived counts an event accepted by the dispatcher.
func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.EventsReceivedTotal.WithLabelValues(event).Inc()
}

// EventDuplicate counts an event dropped by de-duplication.
func (m *Metrics) EventDuplicate() {
	if m == nil {
		return
	}
	m.EventsDuplicateTotal.Inc()
}

// EventRejected counts an event refused by a full dispatch queue.
func (m *Metrics) EventRejected() {
	if m == nil {
		return
	}
	m.EventsRejectedTotal.Inc()
}

// AttemptCompleted records one HTTP attempt. result is success, failed,
// network_error or configuration_error.
func (m *Metrics) AttemptCompleted(event, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.DeliveryAttemptsTotal.WithLabelValues(event, result).Inc()
	m.DeliveryAttemptDuration.WithLabelValues(event).Observe(d.Seconds())
}

// ChainStarted marks a retry chain as running.
func (m *Metrics) ChainStarted() {
	if m == nil {
		return
	}
	m.DeliveryChainsInFlight.Inc()
}

// ChainFinished records the final state of a chain: success, failed or scheduled.
func (m *Metrics) ChainFinished(result string) {
	if m == nil {
		return
	}
	m.DeliveryChainsInFlight.Dec()
	m.DeliveryChainsTotal.WithLabelValues(result).Inc()
}

// RetryScheduled counts a task handed to the durable queue.
func (m *Metrics) RetryScheduled() {
	if m == nil {
		return
	}
	m.RetriesScheduledTotal.Inc()
}

// RateLimited counts a deferred attempt.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// RecorderError counts a failed delivery log or status write.
func (m *Metrics) RecorderError() {
	if m == nil {
		return
	}
	m.RecorderErrorsTotal.Inc()
}

// ConditionError counts a subscriber condition that could not be applied.
func (m *Metrics) ConditionError() {
	if m == nil {
		return
	}
	m.ConditionErrorsTotal.Inc()
}

// GinMiddleware instruments HTTP requests. Routes are labelled by their
// registered pattern to keep label cardinality bounded.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
