package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"agentforms-webhooks/internal/adapter/storage/memory"
	"agentforms-webhooks/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func strPtr(s string) *string { return &s }

// fastRetry keeps inline backoff waits short in tests.
func fastRetry(maxRetries int) domain.RetryPolicy {
	return domain.RetryPolicy{MaxRetries: maxRetries, Backoff: domain.BackoffExponential, InitialDelayMs: 5}
}

func testSubscriber(url string, triggers ...string) domain.Subscriber {
	return domain.Subscriber{
		ID:         uuid.New(),
		Name:       "test hook",
		URL:        url,
		Method:     http.MethodPost,
		AuthScheme: domain.AuthSchemeNone,
		Retry:      fastRetry(0),
		Enabled:    true,
		Status:     domain.SubscriberStatusActive,
		Triggers:   triggers,
	}
}

// recordedRequest is one request captured by a receiver.
type recordedRequest struct {
	Path    string
	Headers http.Header
	Body    []byte
}

// receiver is an httptest server answering with a fixed status and capturing requests.
type receiver struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	delay    time.Duration
}

func newReceiver(t *testing.T, status int) *receiver {
	t.Helper()
	r := &receiver{status: status}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, recordedRequest{Path: req.URL.Path, Headers: req.Header.Clone(), Body: body})
		status, delay := r.status, r.delay
		r.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		w.WriteHeader(status)
		if status < 300 {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *receiver) Requests() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func (r *receiver) SetStatus(status int) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

// engine bundles a driver with in-memory stores.
type engine struct {
	subs     *memory.SubscriberStore
	logs     *memory.DeliveryLog
	queue    *memory.RetryQueue
	executor *HTTPExecutor
	driver   *RetryDriver
}

func newEngine(opts RetryDriverOptions, subs ...domain.Subscriber) *engine {
	e := &engine{
		subs:     memory.NewSubscriberStore(subs...),
		logs:     memory.NewDeliveryLog(),
		executor: NewHTTPExecutor(nil, ExecutorConfig{Timeout: 2 * time.Second, UserAgent: "afw-test"}),
	}
	if opts.Subscribers == nil {
		opts.Subscribers = e.subs
	}
	if q, ok := opts.Queue.(*memory.RetryQueue); ok {
		e.queue = q
	}
	e.driver = NewRetryDriver(NewWebhookSigner(nil), e.executor, e.logs, e.subs, opts, newTestLogger())
	return e
}
