// Package recommend orchestrates the full recommendation flow:
// query understanding, hybrid retrieval, pairwise reranking, and
// multi-dimensional scoring.
package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/llm"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/reranker"
	"github.com/cloudcompass/recommender/internal/retriever"
	"github.com/cloudcompass/recommender/internal/scorer"
)

const summarySystem = "You are a cloud infrastructure advisor helping users understand their options across cloud providers."

const summaryPrompt = `Based on these recommendations for the user's query, generate a helpful summary.

USER QUERY: %q

TOP RECOMMENDATIONS:
%s

Generate a 2-3 paragraph summary that:
1. Highlights the top recommendation and why it's the best fit
2. Compares options across providers if applicable
3. Notes any tradeoffs or considerations
4. Suggests next steps

Keep the tone helpful and professional. Be specific about service names and features.`

// emptySummary is returned when retrieval or reranking produces nothing.
const emptySummary = "No matching cloud services found for your requirements. Try broadening your search criteria."

// ProviderBest summarizes the top-ranked service of one provider.
type ProviderBest struct {
	ServiceName string   `json:"service_name"`
	Score       float64  `json:"score"`
	Pricing     string   `json:"pricing"`
	KeyFeatures []string `json:"key_features"`
}

// ProviderComparison is attached when the recommendations span more
// than one provider.
type ProviderComparison struct {
	ProvidersFound  []string                `json:"providers_found"`
	BestPerProvider map[string]ProviderBest `json:"best_per_provider"`
}

// Result is the full pipeline output for one query.
type Result struct {
	Query           string                   `json:"query"`
	Requirements    *query.Requirements      `json:"requirements"`
	Recommendations []catalog.Recommendation `json:"recommendations"`
	Summary         string                   `json:"summary"`

	ProviderComparison *ProviderComparison `json:"provider_comparison,omitempty"`

	CandidatesRetrieved int           `json:"total_candidates_retrieved"`
	CandidatesReranked  int           `json:"total_candidates_reranked"`
	ProcessingTime      time.Duration `json:"-"`

	ProcessingSeconds float64 `json:"processing_time_seconds"`
}

// Pipeline wires the four stages together.
type Pipeline struct {
	processor *query.Processor
	retriever retriever.Retriever
	reranker  reranker.Reranker
	scorer    *scorer.Scorer

	llmClient llm.LLM
	chatModel string
	logger    *slog.Logger
}

// Option is a functional option for configuring Pipeline.
type Option func(*Pipeline)

// WithChatModel sets the model used for summary generation.
func WithChatModel(model string) Option {
	return func(p *Pipeline) {
		p.chatModel = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New assembles the pipeline from its stages. The llm client is used
// only for the final summary; pass nil to always use the deterministic
// fallback summary.
func New(processor *query.Processor, ret retriever.Retriever, rer reranker.Reranker, sc *scorer.Scorer, llmClient llm.LLM, opts ...Option) *Pipeline {
	p := &Pipeline{
		processor: processor,
		retriever: ret,
		reranker:  rer,
		scorer:    sc,
		llmClient: llmClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Recommend runs the full pipeline for a natural language query. A
// positive topK overrides the configured result count for this call;
// pass 0 to use the default. The override narrows only the final cut,
// not the rerank depth, which is fixed at construction.
func (p *Pipeline) Recommend(ctx context.Context, rawQuery string, topK int) (*Result, error) {
	start := time.Now()

	p.logger.Info("pipeline started", "query", rawQuery)

	requirements, err := p.processor.Process(ctx, rawQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to process query: %w", err)
	}

	candidates, err := p.retriever.Retrieve(ctx, requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve candidates: %w", err)
	}
	if len(candidates) == 0 {
		p.logger.Warn("no candidates retrieved", "query", rawQuery)
		return p.emptyResult(rawQuery, requirements, start), nil
	}

	scored, err := p.reranker.Rerank(ctx, requirements.RawQuery, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to rerank candidates: %w", err)
	}
	if len(scored) == 0 {
		p.logger.Warn("no candidates survived reranking", "query", rawQuery)
		return p.emptyResult(rawQuery, requirements, start), nil
	}

	recommendations := p.scorer.ScoreAndRank(requirements, scored, topK)

	result := &Result{
		Query:               rawQuery,
		Requirements:        requirements,
		Recommendations:     recommendations,
		Summary:             p.generateSummary(ctx, rawQuery, recommendations),
		ProviderComparison:  compareProviders(recommendations),
		CandidatesRetrieved: len(candidates),
		CandidatesReranked:  len(scored),
		ProcessingTime:      time.Since(start),
	}
	result.ProcessingSeconds = result.ProcessingTime.Seconds()

	p.logger.Info("pipeline complete",
		"retrieved", result.CandidatesRetrieved,
		"reranked", result.CandidatesReranked,
		"recommendations", len(recommendations),
		"duration", result.ProcessingTime)

	return result, nil
}

func (p *Pipeline) emptyResult(rawQuery string, requirements *query.Requirements, start time.Time) *Result {
	r := &Result{
		Query:           rawQuery,
		Requirements:    requirements,
		Recommendations: []catalog.Recommendation{},
		Summary:         emptySummary,
		ProcessingTime:  time.Since(start),
	}
	r.ProcessingSeconds = r.ProcessingTime.Seconds()
	return r
}

// generateSummary asks the chat model for a closing summary, falling
// back to a deterministic one-liner built from the top recommendation.
func (p *Pipeline) generateSummary(ctx context.Context, rawQuery string, recommendations []catalog.Recommendation) string {
	if len(recommendations) == 0 {
		return emptySummary
	}

	if p.llmClient != nil {
		var lines []string
		for _, rec := range recommendations {
			if len(lines) == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("#%d: %s (%s) - Score: %.1f/10 - %s",
				rec.Rank, rec.ServiceName, strings.ToUpper(rec.Provider),
				rec.RelevanceScore, rec.PricingSummary))
		}

		prompt := fmt.Sprintf(summaryPrompt, rawQuery, strings.Join(lines, "\n"))
		summary, err := p.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
			Model:        p.chatModel,
			SystemPrompt: summarySystem,
			MaxTokens:    500,
		})
		if err != nil {
			p.logger.Warn("summary generation failed, using fallback", "error", err)
		} else if s := strings.TrimSpace(summary); s != "" {
			return s
		}
	}

	top := recommendations[0]
	return fmt.Sprintf("Based on your requirements, the top recommendation is %s from %s. %s",
		top.ServiceName, strings.ToUpper(top.Provider), top.Explanation)
}

// compareProviders groups the recommendations by provider and reports
// the best entry for each. Single-provider result sets get no comparison.
func compareProviders(recommendations []catalog.Recommendation) *ProviderComparison {
	best := make(map[string]ProviderBest)
	var providers []string

	for _, rec := range recommendations {
		if _, seen := best[rec.Provider]; seen {
			continue
		}
		providers = append(providers, rec.Provider)

		features := rec.KeyFeatures
		if len(features) > 3 {
			features = features[:3]
		}
		best[rec.Provider] = ProviderBest{
			ServiceName: rec.ServiceName,
			Score:       rec.RelevanceScore,
			Pricing:     rec.PricingSummary,
			KeyFeatures: features,
		}
	}

	if len(best) < 2 {
		return nil
	}
	return &ProviderComparison{
		ProvidersFound:  providers,
		BestPerProvider: best,
	}
}
