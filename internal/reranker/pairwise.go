package reranker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudcompass/recommender/internal/catalog"
)

// Defaults for the sliding-window reranker.
const (
	DefaultMaxCandidates = 20
	maxPasses            = 3
)

// PairwiseReranker sorts candidates with repeated back-to-front bubble
// passes, asking the oracle for each adjacent pair. k passes guarantee
// the top k positions are correct relative to the oracle's judgments.
type PairwiseReranker struct {
	oracle        Oracle
	maxCandidates int
	numPasses     int
	logger        *slog.Logger
}

var _ Reranker = (*PairwiseReranker)(nil)

// PairwiseOption is a functional option for configuring PairwiseReranker.
type PairwiseOption func(*PairwiseReranker)

// WithMaxCandidates caps how many candidates enter the sort; the rest
// are dropped before the first comparison.
func WithMaxCandidates(n int) PairwiseOption {
	return func(r *PairwiseReranker) {
		if n > 0 {
			r.maxCandidates = n
		}
	}
}

// WithTopK sets how many top positions must be placed correctly. The
// pass count is min(topK, 3): beyond three passes the marginal ordering
// gain does not justify another N-1 LLM calls.
func WithTopK(topK int) PairwiseOption {
	return func(r *PairwiseReranker) {
		if topK > 0 {
			r.numPasses = topK
			if r.numPasses > maxPasses {
				r.numPasses = maxPasses
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PairwiseOption {
	return func(r *PairwiseReranker) {
		r.logger = logger
	}
}

// NewPairwiseReranker creates a sliding-window reranker around the oracle.
func NewPairwiseReranker(oracle Oracle, opts ...PairwiseOption) *PairwiseReranker {
	r := &PairwiseReranker{
		oracle:        oracle,
		maxCandidates: DefaultMaxCandidates,
		numPasses:     maxPasses,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank runs numPasses back-to-front bubble passes over the candidates.
// A comparison failure keeps the pair's current order and is never fatal.
// Context cancellation aborts the remaining comparisons but keeps every
// swap already made, so the caller still gets a usable ordering.
func (r *PairwiseReranker) Rerank(ctx context.Context, query string, candidates []*catalog.Candidate) ([]*catalog.ScoredCandidate, error) {
	if len(candidates) <= 1 {
		return positionScores(candidates), nil
	}

	ranked := make([]*catalog.Candidate, len(candidates))
	copy(ranked, candidates)
	if len(ranked) > r.maxCandidates {
		ranked = ranked[:r.maxCandidates]
	}

	r.logger.Info("reranking candidates",
		"candidates", len(ranked),
		"passes", r.numPasses,
		"comparisons", r.numPasses*(len(ranked)-1))

passes:
	for pass := 0; pass < r.numPasses; pass++ {
		swaps := 0

		// Back-to-front: the best candidate bubbles toward position 0.
		for i := len(ranked) - 1; i >= 1; i-- {
			if ctx.Err() != nil {
				r.logger.Warn("reranking aborted, keeping partial order",
					"pass", pass+1, "error", ctx.Err())
				break passes
			}

			winner, err := r.oracle.Compare(ctx, query, ranked[i-1], ranked[i])
			if err != nil {
				r.logger.Warn("comparison failed, keeping pair order",
					"left", ranked[i-1].ServiceName,
					"right", ranked[i].ServiceName,
					"error", err)
				continue
			}

			if winner == ChoiceB {
				ranked[i-1], ranked[i] = ranked[i], ranked[i-1]
				swaps++
			}
		}

		r.logger.Debug("rerank pass complete", "pass", pass+1, "swaps", swaps)
	}

	return positionScores(ranked), nil
}

// positionScores converts the final ordering into scored candidates.
// Scores run linearly from 10 at the top position down to 1 at the last.
func positionScores(ranked []*catalog.Candidate) []*catalog.ScoredCandidate {
	scored := make([]*catalog.ScoredCandidate, 0, len(ranked))
	for i, c := range ranked {
		score := 10.0 - float64(i)*9.0/float64(max(len(ranked)-1, 1))
		scored = append(scored, &catalog.ScoredCandidate{
			Candidate:         c,
			LLMRelevanceScore: score,
			LLMExplanation:    fmt.Sprintf("Ranked #%d by pairwise comparison", i+1),
		})
	}
	return scored
}
