package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/reviewly/reviewly/internal/llm"
)

// ScriptedChat is an httptest server speaking the streamed chat-completions
// wire format. Each call to /chat/completions consumes the next script: the
// server writes its chunks as SSE data lines, then the [DONE] sentinel.
//
// Build chunks with TextChunk, ToolCallChunk and FinishChunk.
type ScriptedChat struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	scripts  [][]string
	requests []llm.ChatRequest
}

// NewScriptedChat starts a scripted server. One script per expected request,
// in order; a request beyond the last script fails the test.
func NewScriptedChat(t *testing.T, scripts ...[]string) *ScriptedChat {
	t.Helper()

	s := &ScriptedChat{t: t, scripts: scripts}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the server's base URL, suitable for llm.Config.BaseURL.
func (s *ScriptedChat) URL() string {
	return s.srv.URL
}

// Requests returns the decoded request bodies received so far.
func (s *ScriptedChat) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]llm.ChatRequest, len(s.requests))
	copy(cp, s.requests)
	return cp
}

func (s *ScriptedChat) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.t.Errorf("scripted chat: reading request body: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.t.Errorf("scripted chat: decoding request body: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.scripts) == 0 {
		s.mu.Unlock()
		s.t.Errorf("scripted chat: request %d has no script", len(s.requests))
		http.Error(w, "no script", http.StatusInternalServerError)
		return
	}
	script := s.scripts[0]
	s.scripts = s.scripts[1:]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, data := range script {
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// TextChunk builds a chunk carrying a fragment of assistant text.
func TextChunk(content string) string {
	return marshalChunk(llm.Choice{
		Delta: llm.Delta{Content: content},
	})
}

// ToolCallChunk builds a chunk carrying a tool-call fragment. Pass id and
// name only on the first fragment of a call; later fragments extend the
// argument text of the call at the same index.
func ToolCallChunk(index int, id, name, args string) string {
	return marshalChunk(llm.Choice{
		Delta: llm.Delta{
			ToolCalls: []llm.ToolCallDelta{{
				Index: index,
				ID:    id,
				Type:  "function",
				Function: llm.FunctionDelta{
					Name:      name,
					Arguments: args,
				},
			}},
		},
	})
}

// FinishChunk builds the terminal chunk of a turn. Use llm.FinishStop or
// llm.FinishToolCalls.
func FinishChunk(reason string) string {
	return marshalChunk(llm.Choice{
		FinishReason: &reason,
	})
}

func marshalChunk(choice llm.Choice) string {
	b, err := json.Marshal(llm.Chunk{
		ID:      "chatcmpl-test",
		Object:  "chat.completion.chunk",
		Choices: []llm.Choice{choice},
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}
