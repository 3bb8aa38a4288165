package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/reviewly/reviewly/internal/catalog"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG is the PostgreSQL implementation of Querier.
type PG struct {
	db querier
}

// NewPG creates a PG over a pool or transaction.
func NewPG(db querier) *PG {
	return &PG{db: db}
}

// TextCandidates recalls products by weighted trigram similarity. The score
// and threshold are computed in SQL so the gin trigram indexes stay useful;
// optional filters narrow the pool before it is capped.
func (p *PG) TextCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	var sb strings.Builder
	args := []any{q.Text}

	// The gate is per field: a strong name match recalls the product even
	// when the blended score would fall short. The blend only orders.
	sb.WriteString(`
		SELECT id, name, description, category, price,
		       SIMILARITY(name, $1) * `)
	sb.WriteString(formatWeight(nameWeight))
	sb.WriteString(` + SIMILARITY(description, $1) * `)
	sb.WriteString(formatWeight(descWeight))
	sb.WriteString(` AS text_score
		FROM products
		WHERE (SIMILARITY(name, $1) > `)
	sb.WriteString(formatWeight(simThreshold))
	sb.WriteString(` OR SIMILARITY(description, $1) > `)
	sb.WriteString(formatWeight(simThreshold))
	sb.WriteString(`)`)

	if q.Category != nil {
		args = append(args, *q.Category)
		fmt.Fprintf(&sb, " AND category = $%d", len(args))
	}
	if q.MinPrice != nil {
		args = append(args, *q.MinPrice)
		fmt.Fprintf(&sb, " AND price >= $%d", len(args))
	}
	if q.MaxPrice != nil {
		args = append(args, *q.MaxPrice)
		fmt.Fprintf(&sb, " AND price <= $%d", len(args))
	}

	fmt.Fprintf(&sb, " ORDER BY text_score DESC LIMIT %d", candidateCap)

	rows, err := p.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var prod catalog.Product
		if err := rows.Scan(&prod.ID, &prod.Name, &prod.Description,
			&prod.Category, &prod.Price, &c.TextScore); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c.Product = prod
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	return candidates, nil
}

// DetailScores sums cosine similarity over all detail rows of each product.
func (p *PG) DetailScores(ctx context.Context, productIDs []int64, vec pgvector.Vector) (map[int64]float64, error) {
	return p.vectorSums(ctx, "product_details", productIDs, vec)
}

// FeatureScores sums cosine similarity over all feature rows of each product.
func (p *PG) FeatureScores(ctx context.Context, productIDs []int64, vec pgvector.Vector) (map[int64]float64, error) {
	return p.vectorSums(ctx, "product_features", productIDs, vec)
}

// vectorSums runs SUM(1 - (embedding <=> $vec)) grouped by product for one of
// the two embedding tables. Products without rows are simply absent from the
// map; the caller treats that as zero.
func (p *PG) vectorSums(ctx context.Context, table string, productIDs []int64, vec pgvector.Vector) (map[int64]float64, error) {
	if len(productIDs) == 0 {
		return map[int64]float64{}, nil
	}

	// table is one of two compile-time constants, never user input.
	query := `
		SELECT product_id, COALESCE(SUM(1 - (embedding <=> $1)), 0)
		FROM ` + table + `
		WHERE product_id = ANY($2) AND embedding IS NOT NULL
		GROUP BY product_id`

	rows, err := p.db.Query(ctx, query, vec, productIDs)
	if err != nil {
		return nil, fmt.Errorf("querying %s scores: %w", table, err)
	}
	defer rows.Close()

	scores := make(map[int64]float64, len(productIDs))
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scanning %s score: %w", table, err)
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s scores: %w", table, err)
	}
	return scores, nil
}

// NearestReviews returns the limit reviews of one product ordered by cosine
// distance to vec.
func (p *PG) NearestReviews(ctx context.Context, productID int64, vec pgvector.Vector, limit int) ([]Review, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, product_id, content, rating
		FROM reviews
		WHERE product_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3`, productID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Content, &r.Rating); err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading reviews: %w", err)
	}
	return reviews, nil
}

// formatWeight renders a scoring constant for SQL without float noise.
func formatWeight(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
