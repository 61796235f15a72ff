package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"agentforms-webhooks/internal/core/domain"
	"agentforms-webhooks/internal/core/ports"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExecutorConfig tunes the HTTP executor.
type ExecutorConfig struct {
	Timeout              time.Duration
	MaxResponseBodyChars int
	UserAgent            string
}

// HTTPExecutor implements ports.DeliveryExecutor.
type HTTPExecutor struct {
	client HTTPClient
	cfg    ExecutorConfig
}

// NewHTTPClient builds the outbound client. Redirects are returned to the caller, not followed.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewHTTPExecutor creates an executor. A nil client uses NewHTTPClient.
func NewHTTPExecutor(client HTTPClient, cfg ExecutorConfig) *HTTPExecutor {
	if client == nil {
		client = NewHTTPClient()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResponseBodyChars <= 0 {
		cfg.MaxResponseBodyChars = domain.DefaultMaxResponseBodyChars
	}
	return &HTTPExecutor{client: client, cfg: cfg}
}

// Execute performs exactly one attempt. It never returns an error for a
// non-success status; failures are reported on the result.
func (e *HTTPExecutor) Execute(ctx context.Context, req ports.DeliveryRequest) ports.DeliveryResult {
	started := time.Now()
	res := e.do(ctx, req)
	res.StartedAt = started
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(started)
	return res
}

func (e *HTTPExecutor) do(ctx context.Context, req ports.DeliveryRequest) ports.DeliveryResult {
	var res ports.DeliveryResult

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		res.ErrorKind = domain.ErrorKindConfiguration
		res.Err = fmt.Errorf("building request: %w", err)
		return res
	}
	for k, vals := range req.Headers {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		res.ErrorKind = domain.ErrorKindNetwork
		res.Err = classifyTransportError(err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.ResponseHeaders = flattenHeaders(resp.Header)

	// read enough bytes to hold MaxResponseBodyChars runes of up to 4 bytes each
	// a failed body read keeps whatever arrived; the status already decided the outcome
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(e.cfg.MaxResponseBodyChars)*utf8.UTFMax))
	res.ResponseBody = truncateChars(string(body), e.cfg.MaxResponseBodyChars)
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if !res.Success() {
		res.Err = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return res
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}
	return err
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = storableText(strings.Join(v, ", "))
	}
	return out
}

// storableText makes receiver-controlled bytes safe for text and jsonb
// columns: invalid UTF-8 becomes U+FFFD and NUL bytes are dropped.
func storableText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}

// truncateChars cleans s with storableText and bounds it to limit characters
// without splitting a rune.
func truncateChars(s string, limit int) string {
	s = storableText(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
