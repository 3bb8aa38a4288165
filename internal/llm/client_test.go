package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/log"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Logger:     log.NewNop(),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://x", Logger: log.NewNop()})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewClient(Config{APIKey: "k", Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k", BaseURL: "http://x"})
	assert.Error(t, err)
}

func TestClient_Stream(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatRequest
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.True(t, req.Stream, "client must force stream=true")
		assert.Equal(t, "openai/gpt-4o-mini", req.Model)

		// Sampling fields ride along even at their zero values.
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &raw))
		for _, key := range []string{
			"temperature", "top_p", "top_k",
			"frequency_penalty", "presence_penalty", "repetition_penalty",
		} {
			assert.Contains(t, raw, key)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"id":"c1","choices":[{"index":0,"delta":{"content":"hi"}}]}`+"\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := client.Stream(context.Background(), ChatRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hi", chunk.Choices[0].Delta.Content)

	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestClient_Stream_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	})

	_, err := client.Stream(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClient_Stream_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Stream(ctx, ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
