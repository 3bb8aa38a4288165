package search

import "sort"

// rankCandidates combines the three sub-scores into the composite total and
// orders the results. Missing vector scores count as zero, so products
// without detail or feature rows still rank on text alone.
//
// Order: descending Total; equal totals break by ascending product id so the
// result order is deterministic.
func rankCandidates(candidates []Candidate, detail, feature map[int64]float64, topN int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		d := detail[c.Product.ID]
		f := feature[c.Product.ID]
		ranked = append(ranked, Ranked{
			Product:      c.Product,
			TextScore:    c.TextScore,
			DetailScore:  d,
			FeatureScore: f,
			Total:        c.TextScore*textWeight + d*detailWeight + f*featureWeight,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Product.ID < ranked[j].Product.ID
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
