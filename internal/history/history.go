// Package history persists a bounded per-user log of search queries.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultRetention is how many queries are kept per user when the caller
// does not configure a limit.
const DefaultRetention = 5

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entry is one stored query.
type Entry struct {
	ID        int64
	UserID    int64
	Query     string
	CreatedAt time.Time
}

// Store manages the query history table.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db        querier
	retention int
	logger    *slog.Logger
}

// NewStore creates a Store. retention <= 0 uses DefaultRetention.
func NewStore(db querier, retention int, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, retention: retention, logger: logger}, nil
}

// Save records a query for the user and evicts the oldest rows beyond the
// retention limit. Insert and eviction run in one statement so concurrent
// saves cannot leave more than retention rows behind for long.
func (s *Store) Save(ctx context.Context, userID int64, query string) error {
	if query == "" {
		return nil
	}

	_, err := s.db.Exec(ctx, `
		WITH inserted AS (
			INSERT INTO user_query_history (user_id, query) VALUES ($1, $2)
		)
		DELETE FROM user_query_history
		WHERE id IN (
			SELECT id FROM user_query_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $3
		)`, userID, query, s.retention-1)
	if err != nil {
		return fmt.Errorf("saving query history: %w", err)
	}

	s.logger.Debug("saved query", "user_id", userID, "query", query)
	return nil
}

// Recent returns the user's stored queries, newest first.
func (s *Store) Recent(ctx context.Context, userID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, query, created_at
		FROM user_query_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, s.retention)
	if err != nil {
		return nil, fmt.Errorf("querying recent history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}
