// Package embedding provides a client for OpenAI-compatible /embeddings
// endpoints. Review and product-detail vectors are produced here and stored
// in pgvector columns; the dimension must match the schema.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reviewly/reviewly/internal/log"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput indicates the text to embed was empty.
	ErrEmptyInput = errors.New("empty input")

	// ErrUpstream indicates the embedding endpoint returned a non-2xx status.
	ErrUpstream = errors.New("upstream error")

	// ErrDimensionMismatch indicates the returned vector does not match the
	// configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// requestTimeout bounds a single embedding call.
const requestTimeout = 30 * time.Second

// Config contains the parameters for Client.
type Config struct {
	APIKey  string
	BaseURL string // e.g. "https://api.openai.com/v1"
	Model   string
	// Dimension is the expected vector width; a mismatch is an error because
	// pgvector columns are declared with a fixed dimension.
	Dimension int
	Logger    log.Logger

	// HTTPClient overrides the default client (tests use the httptest server's).
	HTTPClient *http.Client
}

// Client generates embeddings over HTTP. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("dimension must be positive")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{cfg: cfg, http: httpClient}, nil
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	body, err := json.Marshal(embedRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("empty embedding response")
	}

	vec := out.Data[0].Embedding
	if len(vec) != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, c.cfg.Dimension, len(vec))
	}

	c.cfg.Logger.Debug("embedded text", "model", c.cfg.Model, "chars", len(text))
	return vec, nil
}
