package recommend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/llm"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/reranker"
	"github.com/cloudcompass/recommender/internal/scorer"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type stubRetriever struct {
	candidates []*catalog.Candidate
	err        error
}

func (s *stubRetriever) Retrieve(context.Context, *query.Requirements) ([]*catalog.Candidate, error) {
	return s.candidates, s.err
}

// identityOracle keeps the incoming order.
type identityOracle struct{}

func (identityOracle) Compare(context.Context, string, *catalog.Candidate, *catalog.Candidate) (reranker.Choice, error) {
	return reranker.ChoiceA, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidateFixture(name, provider string) *catalog.Candidate {
	return &catalog.Candidate{
		ServiceID:   strings.ToLower(provider + "_" + name),
		ServiceName: name,
		Provider:    provider,
		Category:    "database",
	}
}

func newTestPipeline(ret *stubRetriever, chat *stubLLM) *Pipeline {
	processor := query.NewProcessor(&stubLLM{err: errors.New("offline")}, query.WithLogger(testLogger()))
	rer := reranker.NewPairwiseReranker(identityOracle{}, reranker.WithLogger(testLogger()))
	sc := scorer.New(scorer.Config{TopK: 5}, scorer.WithLogger(testLogger()))
	return New(processor, ret, rer, sc, chat, WithLogger(testLogger()))
}

func TestRecommendFullFlow(t *testing.T) {
	ret := &stubRetriever{candidates: []*catalog.Candidate{
		candidateFixture("RDS", "aws"),
		candidateFixture("Cloud SQL", "gcp"),
		candidateFixture("Azure SQL", "azure"),
	}}
	p := newTestPipeline(ret, &stubLLM{response: "Here is a summary."})

	result, err := p.Recommend(context.Background(), "managed database", 0)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if result.Query != "managed database" {
		t.Errorf("Query = %q", result.Query)
	}
	if result.CandidatesRetrieved != 3 || result.CandidatesReranked != 3 {
		t.Errorf("counts = %d/%d, want 3/3", result.CandidatesRetrieved, result.CandidatesReranked)
	}
	if len(result.Recommendations) != 3 {
		t.Fatalf("recommendations = %d, want 3", len(result.Recommendations))
	}
	if result.Recommendations[0].Rank != 1 {
		t.Errorf("top rank = %d, want 1", result.Recommendations[0].Rank)
	}
	if result.Summary != "Here is a summary." {
		t.Errorf("Summary = %q", result.Summary)
	}
	if result.Requirements == nil {
		t.Error("Requirements missing from result")
	}
	if result.ProcessingSeconds < 0 {
		t.Errorf("ProcessingSeconds = %v", result.ProcessingSeconds)
	}
}

func TestRecommendTopKOverride(t *testing.T) {
	ret := &stubRetriever{candidates: []*catalog.Candidate{
		candidateFixture("RDS", "aws"),
		candidateFixture("Cloud SQL", "gcp"),
		candidateFixture("Azure SQL", "azure"),
	}}
	p := newTestPipeline(ret, &stubLLM{response: "summary"})

	result, err := p.Recommend(context.Background(), "managed database", 1)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 1 {
		t.Errorf("recommendations = %d, want 1 with per-call override", len(result.Recommendations))
	}
	// The override trims the final list only, not the earlier stages.
	if result.CandidatesRetrieved != 3 || result.CandidatesReranked != 3 {
		t.Errorf("counts = %d/%d, want 3/3", result.CandidatesRetrieved, result.CandidatesReranked)
	}
}

func TestRecommendEmptyRetrieval(t *testing.T) {
	p := newTestPipeline(&stubRetriever{}, &stubLLM{response: "unused"})

	result, err := p.Recommend(context.Background(), "obscure request", 0)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(result.Recommendations) != 0 {
		t.Errorf("recommendations = %d, want 0", len(result.Recommendations))
	}
	if !strings.Contains(result.Summary, "broadening") {
		t.Errorf("Summary = %q, want broaden-your-criteria message", result.Summary)
	}
	if result.ProviderComparison != nil {
		t.Error("ProviderComparison set for empty result")
	}
}

func TestRecommendRetrievalError(t *testing.T) {
	p := newTestPipeline(&stubRetriever{err: errors.New("store down")}, &stubLLM{})

	if _, err := p.Recommend(context.Background(), "anything", 0); err == nil {
		t.Fatal("want error when retrieval fails")
	}
}

func TestRecommendSummaryFallback(t *testing.T) {
	ret := &stubRetriever{candidates: []*catalog.Candidate{candidateFixture("RDS", "aws")}}
	p := newTestPipeline(ret, &stubLLM{err: errors.New("chat model down")})

	result, err := p.Recommend(context.Background(), "managed database", 0)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !strings.Contains(result.Summary, "RDS") || !strings.Contains(result.Summary, "AWS") {
		t.Errorf("Summary = %q, want deterministic fallback naming the top service", result.Summary)
	}
}

func TestCompareProviders(t *testing.T) {
	recs := []catalog.Recommendation{
		{Rank: 1, Provider: "aws", ServiceName: "RDS", RelevanceScore: 10, KeyFeatures: []string{"a", "b", "c", "d"}},
		{Rank: 2, Provider: "aws", ServiceName: "Aurora", RelevanceScore: 9},
		{Rank: 3, Provider: "gcp", ServiceName: "Cloud SQL", RelevanceScore: 8},
	}

	cmp := compareProviders(recs)
	if cmp == nil {
		t.Fatal("comparison = nil, want one for two providers")
	}
	if len(cmp.ProvidersFound) != 2 {
		t.Errorf("ProvidersFound = %v", cmp.ProvidersFound)
	}
	if cmp.BestPerProvider["aws"].ServiceName != "RDS" {
		t.Errorf("best aws = %q, want first-ranked RDS", cmp.BestPerProvider["aws"].ServiceName)
	}
	if len(cmp.BestPerProvider["aws"].KeyFeatures) != 3 {
		t.Errorf("features = %d, want capped at 3", len(cmp.BestPerProvider["aws"].KeyFeatures))
	}
}

func TestCompareProvidersSingleProvider(t *testing.T) {
	recs := []catalog.Recommendation{
		{Rank: 1, Provider: "aws", ServiceName: "RDS"},
		{Rank: 2, Provider: "aws", ServiceName: "Aurora"},
	}
	if cmp := compareProviders(recs); cmp != nil {
		t.Errorf("comparison = %+v, want nil for a single provider", cmp)
	}
}
