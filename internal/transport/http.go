// Package transport performs single HTTP exchanges for the dispatcher.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"turnstile/pkg/core"
)

// Config configures the HTTP client. Retries are never configurable here:
// a retry is a new dispatch and must be charged against the quota again.
type Config struct {
	Timeout   time.Duration     `validate:"min=1ms"`
	UserAgent string            `validate:"omitempty"`
	Headers   map[string]string `validate:"omitempty"`
}

// DefaultConfig returns a Config with a 10 second timeout.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		UserAgent: "turnstile",
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request and response tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client implements core.Transport on top of resty.
type Client struct {
	client *resty.Client
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient validates config and builds a client with retries disabled.
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	c := &Client{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}

	client := resty.New()
	client.SetTimeout(config.Timeout)
	client.SetRetryCount(0)
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	logger := c.logger
	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})
	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("http response")
		return nil
	})

	c.client = client
	return c, nil
}

// Send performs exactly one HTTP exchange. Non-2xx statuses are returned as
// responses, not errors; err is set only when no response was received.
func (c *Client) Send(ctx context.Context, req *core.WireRequest) (*core.WireResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.ErrClientClosed
	}

	r := c.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	headers := resp.Header()
	if headers == nil {
		headers = make(http.Header)
	}
	return &core.WireResponse{
		StatusCode: resp.StatusCode(),
		Headers:    headers.Clone(),
		Body:       resp.Bytes(),
	}, nil
}

// Close releases idle connections. Further sends fail with core.ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

var _ core.Transport = (*Client)(nil)
