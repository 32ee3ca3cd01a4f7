package retriever

import (
	"sort"

	"github.com/cloudcompass/recommender/internal/sparse"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

// DefaultRRFK is the standard rank constant for reciprocal rank fusion.
const DefaultRRFK = 60

// fusedResult carries a candidate ID through fusion with the scores from
// each retrieval path.
type fusedResult struct {
	ID          string
	DenseScore  float64
	SparseScore float64
	FusionScore float64
}

// fuseResults merges dense and sparse result lists with reciprocal rank
// fusion: each list contributes 1/(k+rank) per candidate, ranks are
// 1-based. Only rank positions matter, never the raw scores. Ties keep
// first-seen order (dense list first), so output is deterministic for
// identical inputs. The fused list is truncated to limit entries.
func fuseResults(dense []vectorstore.ScoredPoint, sparseResults []sparse.Result, k, limit int) []fusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]*fusedResult)
	var order []string

	for i, pt := range dense {
		r, ok := scores[pt.ID]
		if !ok {
			r = &fusedResult{ID: pt.ID}
			scores[pt.ID] = r
			order = append(order, pt.ID)
		}
		r.DenseScore = pt.Score
		r.FusionScore += 1.0 / float64(k+i+1)
	}

	for i, res := range sparseResults {
		r, ok := scores[res.DocID]
		if !ok {
			r = &fusedResult{ID: res.DocID}
			scores[res.DocID] = r
			order = append(order, res.DocID)
		}
		r.SparseScore = res.Score
		r.FusionScore += 1.0 / float64(k+i+1)
	}

	fused := make([]fusedResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, *scores[id])
	}

	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].FusionScore > fused[b].FusionScore
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
