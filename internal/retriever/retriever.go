package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/embedder"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/sparse"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

// Defaults for hybrid retrieval.
const (
	DefaultDenseTopK      = 30
	DefaultSparseTopK     = 30
	DefaultFusionTopK     = 25
	DefaultScoreThreshold = 0.3

	scrollBatchSize = 256
)

// Retriever finds candidate services for a processed query.
type Retriever interface {
	Retrieve(ctx context.Context, req *query.Requirements) ([]*catalog.Candidate, error)
}

// Config tunes the hybrid retriever. Zero fields fall back to defaults,
// with one exception: BM25B = 0 means the default, a negative BM25B
// disables document length normalization in the lexical index.
type Config struct {
	DenseTopK      int
	SparseTopK     int
	FusionTopK     int
	ScoreThreshold float64
	RRFK           int
	BM25K1         float64
	BM25B          float64
}

// HybridRetriever combines dense vector search with a BM25 lexical index
// and merges both result lists by reciprocal rank fusion.
type HybridRetriever struct {
	store    vectorstore.VectorStore
	embedder embedder.Embedder
	index    *sparse.Index
	cfg      Config
	logger   *slog.Logger
}

var _ Retriever = (*HybridRetriever)(nil)

// Option is a functional option for configuring HybridRetriever.
type Option func(*HybridRetriever)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HybridRetriever) {
		r.logger = logger
	}
}

// NewHybridRetriever builds the BM25 index from the full catalog in the
// vector store and returns a ready retriever. An unreachable store is
// fatal; an empty collection only logs a warning, lexical search then
// returns nothing until the catalog is ingested.
func NewHybridRetriever(ctx context.Context, store vectorstore.VectorStore, emb embedder.Embedder, cfg Config, opts ...Option) (*HybridRetriever, error) {
	if cfg.DenseTopK <= 0 {
		cfg.DenseTopK = DefaultDenseTopK
	}
	if cfg.SparseTopK <= 0 {
		cfg.SparseTopK = DefaultSparseTopK
	}
	if cfg.FusionTopK <= 0 {
		cfg.FusionTopK = DefaultFusionTopK
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.BM25K1 <= 0 {
		cfg.BM25K1 = sparse.DefaultK1
	}
	switch {
	case cfg.BM25B == 0:
		cfg.BM25B = sparse.DefaultB
	case cfg.BM25B < 0:
		cfg.BM25B = 0
	}

	r := &HybridRetriever{
		store:    store,
		embedder: emb,
		index:    sparse.NewIndex(cfg.BM25K1, cfg.BM25B),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.buildIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to build lexical index: %w", err)
	}
	return r, nil
}

func (r *HybridRetriever) buildIndex(ctx context.Context) error {
	offset := ""
	for {
		points, next, err := r.store.Scroll(ctx, scrollBatchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to scroll collection: %w", err)
		}
		for _, pt := range points {
			r.index.Add(pt.ID, buildSearchText(pt.Payload))
		}
		if next == "" {
			break
		}
		offset = next
	}

	if r.index.Len() == 0 {
		r.logger.Warn("collection is empty, lexical search disabled until ingestion")
	} else {
		r.logger.Info("lexical index built", "documents", r.index.Len())
	}
	return nil
}

// Retrieve runs dense and sparse search for the query and fuses the
// results. The dense path applies provider/category filters and the
// score threshold; the sparse path is unfiltered so a strong lexical
// match can survive an over-strict filter and still compete in fusion.
func (r *HybridRetriever) Retrieve(ctx context.Context, req *query.Requirements) ([]*catalog.Candidate, error) {
	searchQuery := req.SearchQuery()

	dense := r.denseSearch(ctx, searchQuery, req)
	sparseResults := r.index.Search(searchQuery, r.cfg.SparseTopK)

	fused := fuseResults(dense, sparseResults, r.cfg.RRFK, r.cfg.FusionTopK)

	r.logger.Debug("hybrid retrieval",
		"dense_hits", len(dense),
		"sparse_hits", len(sparseResults),
		"fused", len(fused))

	return r.hydrate(ctx, fused), nil
}

// denseSearch embeds the query and searches the vector store. Failures
// degrade to an empty dense list so the sparse path still produces
// candidates.
func (r *HybridRetriever) denseSearch(ctx context.Context, searchQuery string, req *query.Requirements) []vectorstore.ScoredPoint {
	vector, err := r.embedder.Embed(ctx, searchQuery)
	if err != nil {
		r.logger.Warn("failed to embed query, skipping dense search", "error", err)
		return nil
	}

	filter := &vectorstore.Filter{
		Providers:  req.PreferredProviders,
		Categories: req.ServiceCategories,
	}

	hits, err := r.store.Search(ctx, vector, r.cfg.DenseTopK, filter, float32(r.cfg.ScoreThreshold))
	if err != nil {
		r.logger.Warn("dense search failed, relying on lexical results", "error", err)
		return nil
	}
	return hits
}

// hydrate loads the full payload for each fused candidate. Individual
// lookup failures are skipped so one bad point cannot sink the batch.
func (r *HybridRetriever) hydrate(ctx context.Context, fused []fusedResult) []*catalog.Candidate {
	candidates := make([]*catalog.Candidate, 0, len(fused))
	for _, f := range fused {
		points, err := r.store.Retrieve(ctx, []string{f.ID})
		if err != nil || len(points) == 0 {
			r.logger.Warn("failed to hydrate candidate", "id", f.ID, "error", err)
			continue
		}
		c := catalog.CandidateFromPayload(points[0].Payload)
		c.PointID = f.ID
		c.DenseScore = f.DenseScore
		c.SparseScore = f.SparseScore
		c.FusionScore = f.FusionScore
		candidates = append(candidates, c)
	}
	return candidates
}

// buildSearchText flattens the payload fields worth matching lexically
// into a single blob for the BM25 index.
func buildSearchText(payload map[string]any) string {
	var parts []string

	appendStr := func(key string) {
		if s, ok := payload[key].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	appendList := func(key string) {
		if items, ok := payload[key].([]any); ok {
			for _, item := range items {
				if s, ok := item.(string); ok && s != "" {
					parts = append(parts, s)
				}
			}
		}
	}

	appendStr("service_name")
	appendStr("description")
	appendStr("short_description")
	appendStr("provider")
	appendStr("category")
	appendStr("service_type")
	appendList("features")
	appendList("use_cases")
	appendList("tags")

	if specs, ok := payload["specs"].(map[string]any); ok {
		if engine, ok := specs["database_engine"].(string); ok && engine != "" {
			parts = append(parts, engine)
		}
	}

	return strings.Join(parts, " ")
}
