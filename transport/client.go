// Package transport issues HTTP/JSON requests against the remote A2A
// platform and normalizes its inconsistent response envelopes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/a2aflow/internal/metrics"
)

// ClientConfig holds configuration for the transport client.
type ClientConfig struct {
	// BaseURL is the root of the remote API, e.g. "http://localhost:5003".
	BaseURL string
	// Timeout is the default per-call timeout.
	Timeout time.Duration
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst size.
	RateBurst int
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   "http://localhost:5003",
		Timeout:   30 * time.Second,
		RateLimit: 10,
		RateBurst: 20,
	}
}

// Client is the single HTTP translation layer between the workflow components
// and the remote platform. It has no side effects beyond the network call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	collector  *metrics.Collector
}

// NewClient creates a transport client. The collector may be nil.
func NewClient(cfg ClientConfig, logger *zap.Logger, collector *metrics.Collector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger.With(zap.String("component", "transport")),
		collector:  collector,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

type callOptions struct {
	bearer    string
	timeout   time.Duration
	operation string
	query     url.Values
}

// CallOption customizes a single Call.
type CallOption func(*callOptions)

// WithBearer attaches an Authorization: Bearer header.
func WithBearer(token string) CallOption {
	return func(o *callOptions) { o.bearer = token }
}

// WithTimeout overrides the default per-call timeout. Payment submission uses
// a longer timeout than the rest of the API.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithOperation names the call for logging and metrics.
func WithOperation(name string) CallOption {
	return func(o *callOptions) { o.operation = name }
}

// WithQuery appends a query parameter.
func WithQuery(key, value string) CallOption {
	return func(o *callOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		o.query.Set(key, value)
	}
}

// Call issues one HTTP request and normalizes the response. body may be nil
// for GET calls. A non-2xx status or an undecodable body yields an *Error;
// callers never see raw remote output except through Envelope / Error.
func (c *Client) Call(ctx context.Context, method, path string, body any, opts ...CallOption) (*Envelope, error) {
	o := callOptions{timeout: c.httpClient.Timeout, operation: path}
	for _, opt := range opts {
		opt(&o)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(o.query) > 0 {
		endpoint += "?" + o.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("transport: serialize request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(o.operation, "unreachable", start)
		return nil, &Error{Err: fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(o.operation, "read_error", start)
		return nil, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.record(o.operation, "error", start)
		e := &Error{StatusCode: resp.StatusCode, Body: truncate(respBody)}
		// Best effort: surface the remote message when the error body is an envelope.
		if env, nerr := Normalize(respBody); nerr == nil {
			e.Message = env.Message
		}
		c.logger.Warn("remote call failed",
			zap.String("operation", o.operation),
			zap.Int("status", resp.StatusCode),
			zap.String("body", e.Body),
		)
		return nil, e
	}

	env, err := Normalize(respBody)
	if err != nil {
		c.record(o.operation, "malformed", start)
		return nil, &Error{StatusCode: resp.StatusCode, Body: truncate(respBody), Err: err}
	}

	status := "ok"
	if env.IsError {
		status = "remote_error"
	}
	c.record(o.operation, status, start)

	c.logger.Debug("remote call",
		zap.String("operation", o.operation),
		zap.Int("status", resp.StatusCode),
		zap.Bool("is_error", env.IsError),
		zap.Duration("duration", time.Since(start)),
	)

	return env, nil
}

// Health probes GET /api/health. Used to fail fast before a workflow run.
// Only reachability matters: a 2xx with a non-JSON body still counts as up.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodGet, "/api/health", nil,
		WithOperation("health"),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && te.StatusCode >= 200 && te.StatusCode <= 299 {
			return nil
		}
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) record(operation, status string, start time.Time) {
	if c.collector != nil {
		c.collector.RecordAPIRequest(operation, status, time.Since(start))
	}
}
