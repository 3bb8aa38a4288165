package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/reviewly/reviewly/internal/log"
)

// Sentinel errors for client operations.
var (
	// ErrMissingAPIKey indicates the client was built without an API key.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrUpstream indicates the completion endpoint returned a non-2xx status.
	ErrUpstream = errors.New("upstream error")
)

// Config contains the parameters for Client.
type Config struct {
	APIKey  string
	BaseURL string // e.g. "https://openrouter.ai/api/v1"
	Logger  log.Logger

	// HTTPClient overrides the default client (tests use the httptest server's).
	HTTPClient *http.Client

	// Limiter applies proactive rate limiting before each request
	// (nil = use default of 10 req/s with burst 30).
	Limiter *rate.Limiter
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
// All configuration is captured immutably at construction time, so a single
// Client is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Streaming responses stay open long past a normal request; rely on
		// context cancellation instead of a client-wide timeout.
		httpClient = &http.Client{Timeout: 0}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    httpClient,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// Stream sends req with stream=true and returns a Stream over the response
// chunks. The caller must Close the stream. A non-2xx status drains the body
// into the returned error.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		c.logger.Warn("completion request rejected",
			"status", resp.StatusCode,
			"model", req.Model)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(detail))
	}

	c.logger.Debug("completion stream opened",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"elapsed", time.Since(start))

	return newStream(resp.Body, c.logger), nil
}
