package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/catalog"
)

func cand(id int64, text float64) Candidate {
	return Candidate{
		Product:   catalog.Product{ID: id, Name: "p"},
		TextScore: text,
	}
}

func TestRankCandidates_CompositeWeights(t *testing.T) {
	candidates := []Candidate{cand(1, 0.5)}
	detail := map[int64]float64{1: 2.0}
	feature := map[int64]float64{1: 1.0}

	ranked := rankCandidates(candidates, detail, feature, 10)
	require.Len(t, ranked, 1)

	// 0.5*0.7 + 2.0*0.2 + 1.0*0.1 = 0.85
	assert.InDelta(t, 0.85, ranked[0].Total, 1e-9)
	assert.Equal(t, 0.5, ranked[0].TextScore)
	assert.Equal(t, 2.0, ranked[0].DetailScore)
	assert.Equal(t, 1.0, ranked[0].FeatureScore)
}

func TestRankCandidates_DescendingOrder(t *testing.T) {
	candidates := []Candidate{cand(1, 0.1), cand(2, 0.9), cand(3, 0.5)}

	ranked := rankCandidates(candidates, nil, nil, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, int64(2), ranked[0].Product.ID)
	assert.Equal(t, int64(3), ranked[1].Product.ID)
	assert.Equal(t, int64(1), ranked[2].Product.ID)
}

func TestRankCandidates_TieBreakAscendingID(t *testing.T) {
	// Identical totals must order by ascending product id regardless of the
	// candidate slice order.
	candidates := []Candidate{cand(42, 0.5), cand(7, 0.5), cand(19, 0.5)}

	ranked := rankCandidates(candidates, nil, nil, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, int64(7), ranked[0].Product.ID)
	assert.Equal(t, int64(19), ranked[1].Product.ID)
	assert.Equal(t, int64(42), ranked[2].Product.ID)
}

func TestRankCandidates_MissingVectorScoresAreZero(t *testing.T) {
	candidates := []Candidate{cand(1, 0.4), cand(2, 0.4)}
	// Only product 2 has any embedded rows.
	detail := map[int64]float64{2: 0.9}

	ranked := rankCandidates(candidates, detail, nil, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(2), ranked[0].Product.ID)
	assert.Equal(t, 0.0, ranked[1].DetailScore)
	assert.InDelta(t, 0.4*textWeight, ranked[1].Total, 1e-9)
}

func TestRankCandidates_Truncation(t *testing.T) {
	candidates := []Candidate{cand(1, 0.9), cand(2, 0.8), cand(3, 0.7), cand(4, 0.6)}

	ranked := rankCandidates(candidates, nil, nil, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(1), ranked[0].Product.ID)
	assert.Equal(t, int64(2), ranked[1].Product.ID)
}

func TestRankCandidates_Empty(t *testing.T) {
	assert.Empty(t, rankCandidates(nil, nil, nil, 5))
}
