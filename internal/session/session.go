// Package session manages in-memory conversation sessions. Each user gets
// one live session holding the running transcript, the product in focus and
// a privilege flag. Sessions are process-local; restarting the service
// starts every conversation fresh.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/llm"
)

// Session is one user's live conversation.
//
// Privileged is a snapshot of the user's role taken when the session is
// created; a role change during the session's lifetime does not take effect
// until the session is evicted or removed.
//
// Session is safe for concurrent use by multiple goroutines.
type Session struct {
	ID     uuid.UUID
	UserID int64

	// Privileged grants access to administration tools.
	Privileged bool

	mu            sync.Mutex
	messages      []llm.Message
	activeProduct *catalog.Product
	lastActive    time.Time
}

// New creates a detached session outside any registry. One-shot CLI runs and
// tests use it; servers should go through Registry.GetOrCreate.
func New(userID int64, privileged bool, system llm.Message) *Session {
	return newSession(userID, privileged, system)
}

func newSession(userID int64, privileged bool, system llm.Message) *Session {
	return &Session{
		ID:         uuid.New(),
		UserID:     userID,
		Privileged: privileged,
		messages:   []llm.Message{system},
		lastActive: time.Now(),
	}
}

// Append adds messages to the transcript. The transcript is append-only;
// nothing ever rewrites or drops earlier entries.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.lastActive = time.Now()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetActiveProduct binds the session to a product; nil clears the binding.
// While a product is bound, review lookups target it directly.
func (s *Session) SetActiveProduct(p *catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProduct = p
	s.lastActive = time.Now()
}

// ActiveProduct returns the bound product, or nil.
func (s *Session) ActiveProduct() *catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProduct
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// idleSince returns the last activity time.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
