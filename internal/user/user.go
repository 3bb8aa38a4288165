// Package user provides account lookup and administration.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Roles assignable to an account. Anything else is rejected.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Sentinel errors for user operations.
var (
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidRole indicates the role is not one of the known roles.
	ErrInvalidRole = errors.New("invalid role")
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is an account row.
type User struct {
	ID        int64
	Email     string
	Role      string
	GithubID  *string
	CreatedAt time.Time
}

// Filter narrows Users queries. Zero-value fields are ignored.
type Filter struct {
	Email       string // exact match
	EmailStarts string // prefix match
	Role        string // exact match, must be a known role if set
	GithubID    string // exact match
	HasGithubID *bool  // true: github_id set, false: github_id null
	Limit       int    // 0 = no limit
}

// ValidRole reports whether role is assignable.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// Store manages user accounts in PostgreSQL.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     querier
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(db querier, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

const userCols = `id, email, role, github_id, created_at`

// User returns one account by id.
func (s *Store) User(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Role, &u.GithubID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("querying user %d: %w", id, err)
	}
	return u, nil
}

// Users returns accounts matching the filter, ordered by id.
func (s *Store) Users(ctx context.Context, f Filter) ([]User, error) {
	if f.Role != "" && !ValidRole(f.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, f.Role)
	}

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Email != "" {
		add("email = $%d", f.Email)
	}
	if f.EmailStarts != "" {
		add("email LIKE $%d", escapeLike(f.EmailStarts)+"%")
	}
	if f.Role != "" {
		add("role = $%d", f.Role)
	}
	if f.GithubID != "" {
		add("github_id = $%d", f.GithubID)
	}
	if f.HasGithubID != nil {
		if *f.HasGithubID {
			conds = append(conds, "github_id IS NOT NULL")
		} else {
			conds = append(conds, "github_id IS NULL")
		}
	}

	query := `SELECT ` + userCols + ` FROM users`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.GithubID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	return users, nil
}

// Count returns how many accounts match the filter.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	// Reuse the filtered query; counting in SQL would duplicate the
	// condition builder for a low-traffic admin operation.
	users, err := s.Users(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}

// Role returns the role of one account.
func (s *Store) Role(ctx context.Context, id int64) (string, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("querying role for user %d: %w", id, err)
	}
	return role, nil
}

// SetRole changes one account's role.
func (s *Store) SetRole(ctx context.Context, id int64, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	tag, err := s.db.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("updating role for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	s.logger.Info("role changed", "user_id", id, "role", role)
	return nil
}

// Delete removes one account.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
