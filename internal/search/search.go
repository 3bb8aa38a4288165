// Package search implements hybrid product search: trigram similarity over
// product name and description recalls candidates, pgvector cosine similarity
// over detail and feature rows refines them, and a weighted composite decides
// the final order.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"

	"github.com/reviewly/reviewly/internal/catalog"
)

// Lexical recall parameters. A candidate enters the pool when either its
// name or its description clears the trigram threshold on its own; the
// weighted blend only orders the pool, which is capped before any vector
// work happens.
const (
	nameWeight   = 0.7
	descWeight   = 0.3
	simThreshold = 0.05
	candidateCap = 30
)

// Composite weights over the three sub-scores.
const (
	textWeight    = 0.7
	detailWeight  = 0.2
	featureWeight = 0.1
)

// DefaultTopN is the result count callers fall back to when no explicit
// count was requested. The engine itself rejects a missing count.
const DefaultTopN = 5

// Sentinel errors for search input.
var (
	// ErrEmptyQuery indicates the search text was empty.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidTopN indicates the requested result count was not positive.
	ErrInvalidTopN = errors.New("top_n must be positive")
)

// Query is one search request.
type Query struct {
	Text     string
	TopN     int      // required, must be positive
	Category *string  // nil = all categories
	MinPrice *float64 // nil = no lower bound
	MaxPrice *float64 // nil = no upper bound
}

// Candidate is a product recalled by the lexical stage, with its trigram
// sub-score.
type Candidate struct {
	Product   catalog.Product
	TextScore float64
}

// Ranked is a fully scored search result.
type Ranked struct {
	Product      catalog.Product
	TextScore    float64
	DetailScore  float64
	FeatureScore float64
	Total        float64
}

// Review is a product review returned by nearest-neighbour lookup.
type Review struct {
	ID        int64
	ProductID int64
	Content   string
	Rating    int16
}

// Querier defines the database operations the engine needs.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider. Tests substitute a hand-written mock.
type Querier interface {
	// TextCandidates runs the trigram recall query with optional filters.
	TextCandidates(ctx context.Context, q Query) ([]Candidate, error)

	// DetailScores sums cosine similarity of all detail rows per product.
	DetailScores(ctx context.Context, productIDs []int64, vec pgvector.Vector) (map[int64]float64, error)

	// FeatureScores sums cosine similarity of all feature rows per product.
	FeatureScores(ctx context.Context, productIDs []int64, vec pgvector.Vector) (map[int64]float64, error)

	// NearestReviews returns the reviews closest to vec for one product.
	NearestReviews(ctx context.Context, productID int64, vec pgvector.Vector, limit int) ([]Review, error)
}

// Embedder generates the query vector for the semantic stages.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs hybrid searches. Safe for concurrent use.
type Engine struct {
	db       Querier
	embedder Embedder
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(db Querier, embedder Embedder, logger *slog.Logger) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, embedder: embedder, logger: logger}, nil
}

// Search runs the full pipeline: lexical recall, query embedding, vector
// sub-scores, composite ranking. Results come back in descending Total order,
// ties broken by ascending product id.
func (e *Engine) Search(ctx context.Context, q Query) ([]Ranked, error) {
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if q.TopN <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopN, q.TopN)
	}

	ctx, span := otel.Tracer("reviewly/search").Start(ctx, "search.hybrid")
	defer span.End()

	candidates, err := e.db.TextCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("recalling candidates: %w", err)
	}
	if len(candidates) == 0 {
		e.logger.Debug("no candidates above similarity threshold", "query", q.Text)
		return nil, nil
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qvec := pgvector.NewVector(vec)

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Product.ID
	}

	detail, err := e.db.DetailScores(ctx, ids, qvec)
	if err != nil {
		return nil, fmt.Errorf("scoring details: %w", err)
	}

	feature, err := e.db.FeatureScores(ctx, ids, qvec)
	if err != nil {
		return nil, fmt.Errorf("scoring features: %w", err)
	}

	ranked := rankCandidates(candidates, detail, feature, q.TopN)
	e.logger.Debug("search completed",
		"query", q.Text,
		"candidates", len(candidates),
		"returned", len(ranked))
	return ranked, nil
}

// ReviewsNearest returns the topK reviews most similar to queryText for one
// product.
func (e *Engine) ReviewsNearest(ctx context.Context, queryText string, productID int64, topK int) ([]Review, error) {
	if queryText == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 1
	}

	vec, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	reviews, err := e.db.NearestReviews(ctx, productID, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("querying reviews: %w", err)
	}
	return reviews, nil
}
