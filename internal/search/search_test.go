package search

import (
	"context"
	"errors"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/log"
)

// mockQuerier is a hand-written Querier double.
type mockQuerier struct {
	candidates []Candidate
	detail     map[int64]float64
	feature    map[int64]float64
	reviews    []Review

	candidatesErr error

	gotQuery      Query
	gotReviewsPID int64
	gotReviewsK   int
}

func (m *mockQuerier) TextCandidates(_ context.Context, q Query) ([]Candidate, error) {
	m.gotQuery = q
	return m.candidates, m.candidatesErr
}

func (m *mockQuerier) DetailScores(_ context.Context, _ []int64, _ pgvector.Vector) (map[int64]float64, error) {
	return m.detail, nil
}

func (m *mockQuerier) FeatureScores(_ context.Context, _ []int64, _ pgvector.Vector) (map[int64]float64, error) {
	return m.feature, nil
}

func (m *mockQuerier) NearestReviews(_ context.Context, productID int64, _ pgvector.Vector, limit int) ([]Review, error) {
	m.gotReviewsPID = productID
	m.gotReviewsK = limit
	return m.reviews, nil
}

// mockEmbedder counts calls and returns a fixed vector.
type mockEmbedder struct {
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	m.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestEngine(t *testing.T, q *mockQuerier) (*Engine, *mockEmbedder) {
	t.Helper()
	emb := &mockEmbedder{}
	engine, err := NewEngine(q, emb, log.NewNop())
	require.NoError(t, err)
	return engine, emb
}

func TestSearch_FullPipeline(t *testing.T) {
	mq := &mockQuerier{
		candidates: []Candidate{
			{Product: catalog.Product{ID: 1, Name: "Wireless Mouse", Category: "Electronics", Price: 29.99}, TextScore: 0.62},
			{Product: catalog.Product{ID: 2, Name: "Wireless Keyboard", Category: "Electronics", Price: 49.99}, TextScore: 0.35},
			{Product: catalog.Product{ID: 3, Name: "Mouse Pad", Category: "Electronics", Price: 9.99}, TextScore: 0.30},
		},
		detail:  map[int64]float64{1: 0.8, 2: 0.1, 3: 0.5},
		feature: map[int64]float64{1: 0.4, 3: 0.2},
	}
	engine, emb := newTestEngine(t, mq)

	category := "Electronics"
	results, err := engine.Search(context.Background(), Query{
		Text:     "wireless mouse",
		TopN:     2,
		Category: &category,
	})
	require.NoError(t, err)

	// Totals: p1 = .62*.7+.8*.2+.4*.1 = .634; p3 = .30*.7+.5*.2+.2*.1 = .33;
	// p2 = .35*.7+.1*.2 = .265. Top 2 are p1, p3.
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Product.ID)
	assert.Equal(t, int64(3), results[1].Product.ID)
	assert.InDelta(t, 0.634, results[0].Total, 1e-9)
	assert.InDelta(t, 0.33, results[1].Total, 1e-9)

	// The query is embedded exactly once per search.
	assert.Equal(t, 1, emb.calls)
	require.NotNil(t, mq.gotQuery.Category)
	assert.Equal(t, "Electronics", *mq.gotQuery.Category)
}

func TestSearch_EmptyText(t *testing.T) {
	engine, _ := newTestEngine(t, &mockQuerier{})
	_, err := engine.Search(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_NoCandidatesSkipsEmbedding(t *testing.T) {
	mq := &mockQuerier{}
	engine, emb := newTestEngine(t, mq)

	results, err := engine.Search(context.Background(), Query{Text: "zzzz", TopN: 5})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.calls, "no vector work without candidates")
}

func TestSearch_InvalidTopN(t *testing.T) {
	engine, emb := newTestEngine(t, &mockQuerier{})

	for _, topN := range []int{0, -3} {
		_, err := engine.Search(context.Background(), Query{Text: "mouse", TopN: topN})
		assert.ErrorIs(t, err, ErrInvalidTopN)
	}
	assert.Zero(t, emb.calls)
}

func TestSearch_QuerierError(t *testing.T) {
	engine, _ := newTestEngine(t, &mockQuerier{candidatesErr: errors.New("boom")})
	_, err := engine.Search(context.Background(), Query{Text: "mouse", TopN: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recalling candidates")
}

func TestReviewsNearest(t *testing.T) {
	mq := &mockQuerier{
		reviews: []Review{
			{ID: 10, ProductID: 5, Content: "battery lasts forever", Rating: 5},
			{ID: 11, ProductID: 5, Content: "decent battery", Rating: 4},
		},
	}
	engine, _ := newTestEngine(t, mq)

	reviews, err := engine.ReviewsNearest(context.Background(), "battery life", 5, 3)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
	assert.Equal(t, int64(5), mq.gotReviewsPID)
	assert.Equal(t, 3, mq.gotReviewsK)
}

func TestReviewsNearest_EmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(t, &mockQuerier{})
	_, err := engine.ReviewsNearest(context.Background(), "", 1, 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestReviewsNearest_TopKFloor(t *testing.T) {
	mq := &mockQuerier{}
	engine, _ := newTestEngine(t, mq)

	_, err := engine.ReviewsNearest(context.Background(), "battery", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, mq.gotReviewsK, "non-positive topK falls back to 1")
}
