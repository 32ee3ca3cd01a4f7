// Package reranker re-orders retrieved candidates with pairwise LLM
// comparisons.
//
// Pointwise scoring asks an LLM for absolute relevance numbers, which
// small models produce inconsistently. Pairwise comparison only asks
// "which of these two is better for the query", a far easier judgment.
// A sliding-window bubble sort keeps the API cost linear: k back-to-front
// passes place the top k candidates correctly in k*(N-1) comparisons.
//
//   - Latency: one LLM call per comparison, runs sequentially
//   - Quality: much better ordering than raw fusion scores when the
//     retrieved set is close in relevance
//   - Cost: passes * (candidates - 1) LLM calls per query
package reranker

import (
	"context"

	"github.com/cloudcompass/recommender/internal/catalog"
)

// Choice identifies the winner of a pairwise comparison.
type Choice int

const (
	// ChoiceA keeps the current order: the earlier candidate wins.
	ChoiceA Choice = iota
	// ChoiceB swaps the pair: the later candidate wins.
	ChoiceB
)

// Oracle decides which of two candidates better matches the query.
type Oracle interface {
	// Compare returns ChoiceA if a is the better match, ChoiceB if b is.
	// Implementations must treat ambiguity as ChoiceA so an unreliable
	// judge never perturbs the order.
	Compare(ctx context.Context, query string, a, b *catalog.Candidate) (Choice, error)
}

// Reranker re-orders candidates by relevance to the query.
type Reranker interface {
	// Rerank returns the candidates as ScoredCandidates in their new
	// order, best first, with position-derived relevance scores.
	Rerank(ctx context.Context, query string, candidates []*catalog.Candidate) ([]*catalog.ScoredCandidate, error)
}
