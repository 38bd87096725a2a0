// Package transport executes admin-API requests through named execution
// contexts. It is the collaborator behind the scheduler's Transport
// interface: one call in, one result out, a timeout surfaced as a failed
// result rather than a hang.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quotaflow/quotaflow/internal/core"
)

// maxResponseSize bounds how much of a response body is retained.
const maxResponseSize = 4 << 20

type boundContext struct {
	cfg     Context
	limiter *rate.Limiter
}

// HTTP dispatches requests over net/http, keyed by execution context id.
type HTTP struct {
	client   *http.Client
	logger   *zap.Logger
	contexts map[string]*boundContext
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithClient overrides the underlying HTTP client.
func WithClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) HTTPOption {
	return func(h *HTTP) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTP builds a transport over the given execution contexts.
func NewHTTP(contexts []Context, opts ...HTTPOption) (*HTTP, error) {
	h := &HTTP{
		client:   &http.Client{},
		logger:   zap.NewNop(),
		contexts: make(map[string]*boundContext, len(contexts)),
	}

	for _, c := range contexts {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		bound := &boundContext{cfg: c}
		if c.RequestsPerSecond > 0 {
			burst := c.Burst
			if burst < 1 {
				burst = 1
			}
			bound.limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
		}
		h.contexts[c.ID] = bound
	}

	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Do executes one request. Errors below the contract boundary (unknown
// context, network failure, deadline) come back as failed results so the
// scheduler can apply its retry policy uniformly.
func (h *HTTP) Do(ctx context.Context, req core.TransportRequest) (*core.TransportResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	bound, ok := h.contexts[req.ContextID]
	if !ok {
		return failed(0, nil, fmt.Sprintf("unknown execution context: %s", req.ContextID)), nil
	}

	if bound.limiter != nil {
		if err := bound.limiter.Wait(ctx); err != nil {
			return failed(0, nil, "request deadline elapsed while pacing: "+err.Error()), nil
		}
	}

	url := strings.TrimRight(bound.cfg.BaseURL, "/") + "/" + strings.TrimLeft(req.Endpoint, "/")

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return failed(0, nil, "build request: "+err.Error()), nil
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range bound.cfg.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return failed(0, nil, "request failed: "+err.Error()), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return failed(resp.StatusCode, flattenHeaders(resp.Header), "read response: "+err.Error()), nil
	}

	h.logger.Debug("transport call completed",
		zap.String("context", req.ContextID),
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	result := &core.TransportResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Data:       data,
		Headers:    flattenHeaders(resp.Header),
	}
	if !result.Success {
		result.Error = fmt.Sprintf("HTTP %d from %s %s", resp.StatusCode, req.Method, req.Endpoint)
	}
	return result, nil
}

func failed(status int, headers map[string]string, message string) *core.TransportResult {
	return &core.TransportResult{
		Success:    false,
		StatusCode: status,
		Headers:    headers,
		Error:      message,
	}
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[key] = values[0]
		}
	}
	return flat
}
