package retriever

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/reranker"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

// fakeStore is an in-memory VectorStore whose dense search matches on
// keyword overlap with a canned query recorded by the fake embedder.
type fakeStore struct {
	points    []vectorstore.Point
	denseHits []vectorstore.ScoredPoint

	scrollErr   error
	searchErr   error
	retrieveErr map[string]error

	lastFilter *vectorstore.Filter
}

func (s *fakeStore) CreateCollection(context.Context, int) error { return nil }
func (s *fakeStore) CollectionExists(context.Context) (bool, error) {
	return true, nil
}
func (s *fakeStore) DeleteCollection(context.Context) error { return nil }
func (s *fakeStore) Upsert(context.Context, []vectorstore.UpsertPoint) error {
	return nil
}
func (s *fakeStore) Count(context.Context) (uint64, error) {
	return uint64(len(s.points)), nil
}

func (s *fakeStore) Search(_ context.Context, _ []float32, _ int, filter *vectorstore.Filter, _ float32) ([]vectorstore.ScoredPoint, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.lastFilter = filter
	return s.denseHits, nil
}

func (s *fakeStore) Scroll(_ context.Context, limit int, offset string) ([]vectorstore.Point, string, error) {
	if s.scrollErr != nil {
		return nil, "", s.scrollErr
	}
	start := 0
	if offset != "" {
		start = len(s.points) // offsets beyond the first page are unused with small fixtures
	}
	if start >= len(s.points) {
		return nil, "", nil
	}
	end := start + limit
	if end > len(s.points) {
		end = len(s.points)
	}
	next := ""
	if end < len(s.points) {
		next = "more"
	}
	return s.points[start:end], next, nil
}

func (s *fakeStore) Retrieve(_ context.Context, ids []string) ([]vectorstore.Point, error) {
	var out []vectorstore.Point
	for _, id := range ids {
		if err, ok := s.retrieveErr[id]; ok {
			return nil, err
		}
		for _, pt := range s.points {
			if pt.ID == id {
				out = append(out, pt)
			}
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int    { return 3 }
func (e *fakeEmbedder) ModelName() string { return "fake" }

func servicePoint(id, name, provider, category, description string, extra map[string]any) vectorstore.Point {
	payload := map[string]any{
		"service_id":   strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		"service_name": name,
		"provider":     provider,
		"category":     category,
		"description":  description,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return vectorstore.Point{ID: id, Payload: payload}
}

func catalogFixture() []vectorstore.Point {
	return []vectorstore.Point{
		servicePoint("p1", "Amazon RDS", "aws", "database",
			"Managed relational database service supporting PostgreSQL and MySQL",
			map[string]any{
				"specs": map[string]any{"database_engine": "postgresql", "vcpu": 4.0, "memory_gb": 16.0},
			}),
		servicePoint("p2", "Amazon EC2", "aws", "compute",
			"Resizable virtual machine compute capacity in the cloud", nil),
		servicePoint("p3", "Cloud SQL", "gcp", "database",
			"Fully managed relational database for PostgreSQL MySQL and SQL Server",
			map[string]any{
				"specs": map[string]any{"database_engine": "postgresql"},
			}),
	}
}

func newTestRetriever(t *testing.T, store *fakeStore, emb *fakeEmbedder) *HybridRetriever {
	t.Helper()
	r, err := NewHybridRetriever(context.Background(), store, emb, Config{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewHybridRetriever() error = %v", err)
	}
	return r
}

func TestNewHybridRetrieverIndexBuildFailure(t *testing.T) {
	store := &fakeStore{scrollErr: errors.New("connection refused")}
	_, err := NewHybridRetriever(context.Background(), store, &fakeEmbedder{}, Config{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err == nil {
		t.Fatal("want error when the store cannot be scrolled at startup")
	}
}

func TestNewHybridRetrieverEmptyCollection(t *testing.T) {
	r := newTestRetriever(t, &fakeStore{}, &fakeEmbedder{})
	if r.index.Len() != 0 {
		t.Errorf("index size = %d, want 0", r.index.Len())
	}
}

func TestRetrieveHybrid(t *testing.T) {
	store := &fakeStore{points: catalogFixture()}
	// Dense search favors EC2; the lexical index should still surface the
	// database services for a postgres query, and fusion ranks RDS high
	// because it scores on both paths.
	store.denseHits = []vectorstore.ScoredPoint{
		{ID: "p1", Score: 0.8},
		{ID: "p2", Score: 0.75},
	}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	req := &query.Requirements{RawQuery: "managed postgresql database"}
	candidates, err := r.Retrieve(context.Background(), req)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates returned")
	}

	if candidates[0].ServiceName != "Amazon RDS" {
		t.Errorf("top candidate = %q, want Amazon RDS (hit on both paths)", candidates[0].ServiceName)
	}
	if candidates[0].DenseScore != 0.8 {
		t.Errorf("DenseScore = %v, want 0.8", candidates[0].DenseScore)
	}
	if candidates[0].SparseScore <= 0 {
		t.Error("SparseScore = 0, want lexical contribution recorded")
	}
	if candidates[0].FusionScore <= 0 {
		t.Error("FusionScore = 0")
	}
	if candidates[0].PointID != "p1" {
		t.Errorf("PointID = %q, want p1", candidates[0].PointID)
	}

	found := false
	for _, c := range candidates {
		if c.ServiceName == "Cloud SQL" {
			found = true
		}
	}
	if !found {
		t.Error("Cloud SQL missing: sparse-only hits must survive fusion")
	}
}

func TestRetrieveDenseFilter(t *testing.T) {
	store := &fakeStore{points: catalogFixture()}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	req := &query.Requirements{
		RawQuery:           "database",
		PreferredProviders: []string{"aws"},
		ServiceCategories:  []string{"database"},
	}
	if _, err := r.Retrieve(context.Background(), req); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if store.lastFilter == nil {
		t.Fatal("dense search received no filter")
	}
	if len(store.lastFilter.Providers) != 1 || store.lastFilter.Providers[0] != "aws" {
		t.Errorf("filter providers = %v, want [aws]", store.lastFilter.Providers)
	}
	if len(store.lastFilter.Categories) != 1 || store.lastFilter.Categories[0] != "database" {
		t.Errorf("filter categories = %v, want [database]", store.lastFilter.Categories)
	}
}

func TestRetrieveDenseFailureFallsBackToSparse(t *testing.T) {
	store := &fakeStore{points: catalogFixture(), searchErr: errors.New("qdrant down")}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	candidates, err := r.Retrieve(context.Background(), &query.Requirements{RawQuery: "postgresql database"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v, dense failure must not be fatal", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates: sparse path should still produce results")
	}
	for _, c := range candidates {
		if c.DenseScore != 0 {
			t.Errorf("candidate %q has dense score %v with dense path down", c.ServiceName, c.DenseScore)
		}
	}
}

func TestRetrieveEmbedFailureFallsBackToSparse(t *testing.T) {
	store := &fakeStore{points: catalogFixture()}
	r := newTestRetriever(t, store, &fakeEmbedder{err: errors.New("ollama down")})

	candidates, err := r.Retrieve(context.Background(), &query.Requirements{RawQuery: "virtual machine compute"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates: sparse path should still produce results")
	}
}

func TestRetrieveSkipsHydrationFailures(t *testing.T) {
	store := &fakeStore{
		points:      catalogFixture(),
		retrieveErr: map[string]error{"p2": errors.New("point gone")},
	}
	store.denseHits = []vectorstore.ScoredPoint{
		{ID: "p1", Score: 0.9},
		{ID: "p2", Score: 0.8},
	}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	candidates, err := r.Retrieve(context.Background(), &query.Requirements{RawQuery: "aws"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, c := range candidates {
		if c.PointID == "p2" {
			t.Error("candidate p2 present despite hydration failure")
		}
	}
}

func TestRetrieveUsesExpandedQuery(t *testing.T) {
	store := &fakeStore{points: catalogFixture()}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	// Raw query says nothing lexically useful, expansion carries the
	// matching vocabulary.
	req := &query.Requirements{
		RawQuery:      "something for my app",
		ExpandedQuery: "managed postgresql relational database",
	}
	candidates, err := r.Retrieve(context.Background(), req)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates for expanded query")
	}
	names := map[string]bool{}
	for _, c := range candidates {
		names[c.ServiceName] = true
	}
	if !names["Amazon RDS"] || !names["Cloud SQL"] {
		t.Errorf("candidates = %v, want both database services matched via expansion", names)
	}
}

// databaseOracle prefers database-category candidates and otherwise
// keeps the incoming order.
type databaseOracle struct {
	calls int
}

func (o *databaseOracle) Compare(_ context.Context, _ string, a, b *catalog.Candidate) (reranker.Choice, error) {
	o.calls++
	if b.Category == "database" && a.Category != "database" {
		return reranker.ChoiceB, nil
	}
	return reranker.ChoiceA, nil
}

func TestRetrieveThenRerank(t *testing.T) {
	store := &fakeStore{points: catalogFixture()}
	// Dense search slightly favors RDS over EC2 and misses Cloud SQL.
	store.denseHits = []vectorstore.ScoredPoint{
		{ID: "p1", Score: 0.8},
		{ID: "p2", Score: 0.75},
	}
	r := newTestRetriever(t, store, &fakeEmbedder{})

	budget := 100.0
	req := &query.Requirements{
		RawQuery:         "managed PostgreSQL database, budget $100/month",
		BudgetMonthlyUSD: &budget,
	}
	candidates, err := r.Retrieve(context.Background(), req)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(candidates))
	}
	if candidates[0].ServiceName != "Amazon RDS" {
		t.Fatalf("fusion top = %q, want Amazon RDS before reranking", candidates[0].ServiceName)
	}

	oracle := &databaseOracle{}
	rer := reranker.NewPairwiseReranker(oracle,
		reranker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	scored, err := rer.Rerank(context.Background(), req.RawQuery, candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}

	if scored[0].Candidate.ServiceName != "Amazon RDS" {
		t.Errorf("reranked top = %q, want Amazon RDS preserved", scored[0].Candidate.ServiceName)
	}
	if scored[0].LLMRelevanceScore != 10 {
		t.Errorf("top score = %v, want 10", scored[0].LLMRelevanceScore)
	}
	// The oracle prefers database services, so EC2 must end up last even
	// though dense search ranked it above Cloud SQL.
	if scored[len(scored)-1].Candidate.ServiceName != "Amazon EC2" {
		names := make([]string, len(scored))
		for i, sc := range scored {
			names[i] = sc.Candidate.ServiceName
		}
		t.Errorf("reranked order = %v, want Amazon EC2 last", names)
	}
	if oracle.calls == 0 {
		t.Error("oracle never consulted")
	}
}
