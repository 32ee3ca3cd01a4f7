package reranker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/llm"
)

// truthOracle ranks candidates by a fixed relevance table.
type truthOracle struct {
	relevance map[string]float64
	calls     int
}

func (o *truthOracle) Compare(_ context.Context, _ string, a, b *catalog.Candidate) (Choice, error) {
	o.calls++
	if o.relevance[b.ServiceName] > o.relevance[a.ServiceName] {
		return ChoiceB, nil
	}
	return ChoiceA, nil
}

// flakyOracle fails every comparison.
type flakyOracle struct {
	calls int
}

func (o *flakyOracle) Compare(context.Context, string, *catalog.Candidate, *catalog.Candidate) (Choice, error) {
	o.calls++
	return ChoiceA, errors.New("model unavailable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func namedCandidates(n int) []*catalog.Candidate {
	out := make([]*catalog.Candidate, n)
	for i := range out {
		out[i] = &catalog.Candidate{ServiceName: fmt.Sprintf("svc-%02d", i)}
	}
	return out
}

func TestRerankTopKCorrectness(t *testing.T) {
	// k back-to-front passes must place the true top k candidates in
	// order, regardless of the starting permutation.
	for _, passes := range []int{1, 2, 3} {
		for _, n := range []int{4, 10} {
			t.Run(fmt.Sprintf("passes=%d_n=%d", passes, n), func(t *testing.T) {
				candidates := namedCandidates(n)
				// Worst case: best candidate starts last.
				relevance := map[string]float64{}
				for i, c := range candidates {
					relevance[c.ServiceName] = float64(i)
				}

				oracle := &truthOracle{relevance: relevance}
				r := NewPairwiseReranker(oracle, WithTopK(passes), WithLogger(testLogger()))

				scored, err := r.Rerank(context.Background(), "q", candidates)
				if err != nil {
					t.Fatalf("Rerank() error = %v", err)
				}
				if len(scored) != n {
					t.Fatalf("len = %d, want %d", len(scored), n)
				}

				want := make([]string, n)
				for i, c := range candidates {
					want[i] = c.ServiceName
				}
				sort.Sort(sort.Reverse(sort.StringSlice(want)))

				for i := 0; i < passes; i++ {
					if scored[i].Candidate.ServiceName != want[i] {
						t.Errorf("position %d = %q, want %q", i, scored[i].Candidate.ServiceName, want[i])
					}
				}
			})
		}
	}
}

func TestRerankComparisonCount(t *testing.T) {
	for _, tc := range []struct {
		passes, n int
	}{
		{1, 5}, {2, 5}, {3, 10},
	} {
		oracle := &truthOracle{relevance: map[string]float64{}}
		r := NewPairwiseReranker(oracle, WithTopK(tc.passes), WithLogger(testLogger()))

		if _, err := r.Rerank(context.Background(), "q", namedCandidates(tc.n)); err != nil {
			t.Fatalf("Rerank() error = %v", err)
		}
		want := tc.passes * (tc.n - 1)
		if oracle.calls != want {
			t.Errorf("passes=%d n=%d: %d comparisons, want exactly %d", tc.passes, tc.n, oracle.calls, want)
		}
	}
}

func TestRerankPassCountCapped(t *testing.T) {
	oracle := &truthOracle{relevance: map[string]float64{}}
	r := NewPairwiseReranker(oracle, WithTopK(10), WithLogger(testLogger()))

	if _, err := r.Rerank(context.Background(), "q", namedCandidates(6)); err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if want := 3 * 5; oracle.calls != want {
		t.Errorf("%d comparisons, want %d (passes capped at 3)", oracle.calls, want)
	}
}

func TestRerankOracleFailuresKeepOrder(t *testing.T) {
	oracle := &flakyOracle{}
	r := NewPairwiseReranker(oracle, WithTopK(2), WithLogger(testLogger()))
	candidates := namedCandidates(5)

	scored, err := r.Rerank(context.Background(), "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v, oracle failures must not be fatal", err)
	}
	if len(scored) != 5 {
		t.Fatalf("len = %d, want 5", len(scored))
	}
	for i, s := range scored {
		if s.Candidate.ServiceName != candidates[i].ServiceName {
			t.Errorf("position %d = %q, want original order preserved", i, s.Candidate.ServiceName)
		}
	}
	if oracle.calls != 2*4 {
		t.Errorf("%d comparisons, want all attempted despite failures", oracle.calls)
	}
}

func TestRerankMaxCandidatesCap(t *testing.T) {
	oracle := &truthOracle{relevance: map[string]float64{}}
	r := NewPairwiseReranker(oracle, WithTopK(1), WithMaxCandidates(3), WithLogger(testLogger()))

	scored, err := r.Rerank(context.Background(), "q", namedCandidates(8))
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(scored) != 3 {
		t.Errorf("len = %d, want 3 after cap", len(scored))
	}
	if oracle.calls != 2 {
		t.Errorf("%d comparisons, want 2 over the capped set", oracle.calls)
	}
}

func TestRerankDegenerate(t *testing.T) {
	r := NewPairwiseReranker(&flakyOracle{}, WithLogger(testLogger()))

	scored, err := r.Rerank(context.Background(), "q", nil)
	if err != nil || len(scored) != 0 {
		t.Errorf("empty input: got %d results, err %v", len(scored), err)
	}

	one := namedCandidates(1)
	scored, err = r.Rerank(context.Background(), "q", one)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(scored) != 1 {
		t.Fatalf("len = %d, want 1", len(scored))
	}
	if scored[0].LLMRelevanceScore != 10.0 {
		t.Errorf("single candidate score = %v, want 10", scored[0].LLMRelevanceScore)
	}
}

func TestRerankCancellation(t *testing.T) {
	candidates := namedCandidates(6)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel after two comparisons; completed swaps must survive.
	oracle := &cancelOracle{cancel: cancel, after: 2}
	r := NewPairwiseReranker(oracle, WithTopK(3), WithLogger(testLogger()))

	scored, err := r.Rerank(ctx, "q", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v, cancellation must not be fatal", err)
	}
	if len(scored) != 6 {
		t.Fatalf("len = %d, want all candidates in partial order", len(scored))
	}
	if oracle.calls > 3 {
		t.Errorf("%d comparisons after cancel, want no further oracle calls", oracle.calls)
	}
	// svc-05 won both comparisons before the cancel, so it moved up two slots.
	if scored[3].Candidate.ServiceName != "svc-05" {
		t.Errorf("position 3 = %q, want svc-05 (swaps before cancel kept)", scored[3].Candidate.ServiceName)
	}
}

// cancelOracle always prefers B and cancels the context after a fixed
// number of comparisons.
type cancelOracle struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (o *cancelOracle) Compare(context.Context, string, *catalog.Candidate, *catalog.Candidate) (Choice, error) {
	o.calls++
	if o.calls >= o.after {
		o.cancel()
	}
	return ChoiceB, nil
}

func TestPositionScores(t *testing.T) {
	scored := positionScores(namedCandidates(4))
	wantScores := []float64{10.0, 7.0, 4.0, 1.0}
	for i, s := range scored {
		if s.LLMRelevanceScore != wantScores[i] {
			t.Errorf("score[%d] = %v, want %v", i, s.LLMRelevanceScore, wantScores[i])
		}
		wantExpl := fmt.Sprintf("Ranked #%d by pairwise comparison", i+1)
		if s.LLMExplanation != wantExpl {
			t.Errorf("explanation[%d] = %q, want %q", i, s.LLMExplanation, wantExpl)
		}
	}
}

type stubLLM struct {
	response string
	err      error
	prompts  []string
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestLLMOracleParsesAnswers(t *testing.T) {
	tests := []struct {
		response string
		want     Choice
	}{
		{"A", ChoiceA},
		{"B", ChoiceB},
		{" b ", ChoiceB},
		{"Service A is the better match", ChoiceA},
		{`"B"`, ChoiceB},
		{"A. Because it is a managed database.", ChoiceA},
		{"neither seems right", ChoiceA},
		{"", ChoiceA},
	}

	a := &catalog.Candidate{ServiceName: "RDS", Provider: "aws", Category: "database"}
	b := &catalog.Candidate{ServiceName: "EC2", Provider: "aws", Category: "compute"}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			oracle := NewLLMOracle(&stubLLM{response: tt.response}, WithOracleLogger(testLogger()))
			got, err := oracle.Compare(context.Background(), "postgres db", a, b)
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare(%q) = %v, want %v", tt.response, got, tt.want)
			}
		})
	}
}

func TestLLMOracleErrorDefaultsToA(t *testing.T) {
	oracle := NewLLMOracle(&stubLLM{err: errors.New("timeout")}, WithOracleLogger(testLogger()))
	got, err := oracle.Compare(context.Background(), "q", &catalog.Candidate{}, &catalog.Candidate{})
	if err == nil {
		t.Fatal("want error surfaced to the reranker")
	}
	if got != ChoiceA {
		t.Errorf("Compare() = %v on error, want ChoiceA", got)
	}
}

func TestLLMOraclePromptContents(t *testing.T) {
	vcpu, mem, price := 4.0, 16.0, 0.017
	a := &catalog.Candidate{
		ServiceName:    "RDS PostgreSQL",
		Provider:       "aws",
		Category:       "database",
		Description:    "Managed relational database",
		VCPU:           &vcpu,
		MemoryGB:       &mem,
		DatabaseEngine: "postgresql",
		PricePerUnit:   &price,
		PriceUnit:      "hour",
		Features:       []string{"Backups", "Multi-AZ", "Encryption", "Read replicas"},
	}
	b := &catalog.Candidate{ServiceName: "EC2", Provider: "aws", Category: "compute", ShortDescription: "VM instances"}

	client := &stubLLM{response: "A"}
	oracle := NewLLMOracle(client, WithOracleLogger(testLogger()))
	if _, err := oracle.Compare(context.Background(), "managed postgres", a, b); err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(client.prompts))
	}

	prompt := client.prompts[0]
	for _, want := range []string{
		"managed postgres",
		"Service: RDS PostgreSQL",
		"Provider: AWS",
		"Database: postgresql",
		"Price: $0.017000 per hour",
		"Features: Backups, Multi-AZ, Encryption",
		"Service: EC2",
		"Description: VM instances",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Read replicas") {
		t.Error("prompt contains fourth feature, want top 3 only")
	}
}
