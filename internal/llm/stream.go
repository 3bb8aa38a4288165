package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/reviewly/reviewly/internal/log"
)

// sse framing constants for the chat-completions stream.
const (
	ssePrefix = "data: "
	sseDone   = "[DONE]"
)

// Stream reads chunked completion events from an open response body.
// Recv returns chunks in arrival order and io.EOF once the upstream sends the
// [DONE] sentinel or closes the connection.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  log.Logger
	done    bool
}

func newStream(body io.ReadCloser, logger log.Logger) *Stream {
	scanner := bufio.NewScanner(body)
	// Argument fragments can make individual event lines large; allow up to 1 MiB.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{
		body:    body,
		scanner: scanner,
		logger:  logger,
	}
}

// Recv returns the next chunk. Blank lines and SSE comments are skipped, as
// are data lines that fail to parse: a single malformed event must not kill
// an otherwise healthy stream.
func (s *Stream) Recv() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == sseDone {
			s.done = true
			return nil, io.EOF
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.logger.Debug("skipping malformed stream event", "error", err)
			continue
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}

	s.done = true
	return nil, io.EOF
}

// Close releases the underlying response body. Safe to call multiple times.
func (s *Stream) Close() error {
	s.done = true
	return s.body.Close()
}
