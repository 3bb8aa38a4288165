package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reviewly/reviewly/internal/llm"
	"github.com/reviewly/reviewly/internal/user"
)

// evictInterval is how often the registry sweeps for idle sessions.
const evictInterval = time.Minute

// RoleResolver looks up a user's role at session creation.
type RoleResolver interface {
	Role(ctx context.Context, userID int64) (string, error)
}

// CategorySource lists the catalog categories for the system prompt.
type CategorySource interface {
	Categories(ctx context.Context) ([]string, error)
}

// Registry holds the live sessions, one per user. It creates sessions on
// first use and evicts sessions that sit idle past the configured timeout.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	roles       RoleResolver
	categories  CategorySource
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry creates a Registry. idleTimeout 0 disables eviction.
func NewRegistry(roles RoleResolver, categories CategorySource, idleTimeout time.Duration, logger *slog.Logger) (*Registry, error) {
	if roles == nil {
		return nil, fmt.Errorf("role resolver is required")
	}
	if categories == nil {
		return nil, fmt.Errorf("category source is required")
	}
	if idleTimeout < 0 {
		return nil, fmt.Errorf("idle timeout must be >= 0")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		roles:       roles,
		categories:  categories,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[int64]*Session),
	}, nil
}

// GetOrCreate returns the user's session, creating it on first use. Creation
// resolves the user's role and seeds the transcript with the system prompt;
// later calls return the existing session untouched.
func (r *Registry) GetOrCreate(ctx context.Context, userID int64) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()
	if ok {
		sess.Touch()
		return sess, nil
	}

	role, err := r.roles.Role(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving role for user %d: %w", userID, err)
	}

	categories, err := r.categories.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	privileged := role == user.RoleAdmin
	system := llm.Message{
		Role:    llm.RoleSystem,
		Content: systemPrompt(categories, privileged),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have created the session while we were resolving
	// the role; keep the winner.
	if existing, ok := r.sessions[userID]; ok {
		existing.Touch()
		return existing, nil
	}

	sess = newSession(userID, privileged, system)
	r.sessions[userID] = sess
	r.logger.Debug("session created",
		"session_id", sess.ID,
		"user_id", userID,
		"privileged", privileged)
	return sess, nil
}

// Remove drops the user's session, if any.
func (r *Registry) Remove(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[userID]; ok {
		delete(r.sessions, userID)
		r.logger.Debug("session removed", "session_id", sess.ID, "user_id", userID)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps idle sessions until ctx is cancelled. Call in a goroutine at
// startup; with idleTimeout 0 it returns immediately.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTimeout == 0 {
		return
	}

	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

// evictIdle removes every session idle past the timeout.
func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(r.sessions, userID)
			r.logger.Debug("session evicted",
				"session_id", sess.ID,
				"user_id", userID,
				"idle_timeout", r.idleTimeout)
		}
	}
}
