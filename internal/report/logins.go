package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LoginStore reads login records from PostgreSQL and implements LoginSource.
type LoginStore struct {
	db querier
}

// NewLoginStore creates a LoginStore.
func NewLoginStore(db querier) (*LoginStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &LoginStore{db: db}, nil
}

// LoginIPs returns every recorded login IP, one entry per login.
func (s *LoginStore) LoginIPs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT ip_address FROM login_records`)
	if err != nil {
		return nil, fmt.Errorf("querying login records: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("scanning login record: %w", err)
		}
		ips = append(ips, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading login records: %w", err)
	}
	return ips, nil
}

// RecordLogin stores one login event.
func (s *LoginStore) RecordLogin(ctx context.Context, userID int64, ip string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO login_records (user_id, ip_address) VALUES ($1, $2)`, userID, ip)
	if err != nil {
		return fmt.Errorf("recording login: %w", err)
	}
	return nil
}
