// Package ingest loads standardized cloud service catalogs, embeds them,
// and writes them to the vector store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/embedder"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

// DefaultUploadBatchSize bounds how many points go to the store per call.
const DefaultUploadBatchSize = 100

// CatalogFile is the standardized per-provider catalog layout.
type CatalogFile struct {
	Metadata struct {
		Provider    string `json:"provider"`
		GeneratedAt string `json:"generated_at,omitempty"`
	} `json:"metadata"`
	Services []catalog.Service `json:"services"`
}

// Stats summarizes one ingestion run.
type Stats struct {
	Provider string
	Loaded   int
	Skipped  int
	Uploaded int
}

// Pipeline ingests catalog files into the vector store.
type Pipeline struct {
	store     vectorstore.VectorStore
	embedder  embedder.Embedder
	batchSize int
	logger    *slog.Logger
}

// Option is a functional option for configuring Pipeline.
type Option func(*Pipeline)

// WithUploadBatchSize sets the upload batch size.
func WithUploadBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates an ingestion pipeline.
func New(store vectorstore.VectorStore, emb embedder.Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		embedder:  emb,
		batchSize: DefaultUploadBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureCollection creates the collection sized to the embedder's
// dimension. With recreate set, an existing collection is dropped first.
func (p *Pipeline) EnsureCollection(ctx context.Context, recreate bool) error {
	exists, err := p.store.CollectionExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists && recreate {
		p.logger.Info("dropping existing collection")
		if err := p.store.DeleteCollection(ctx); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
		exists = false
	}

	if !exists {
		dimension := p.embedder.Dimension()
		p.logger.Info("creating collection", "dimension", dimension)
		if err := p.store.CreateCollection(ctx, dimension); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}
	return nil
}

// IngestFile loads one standardized catalog file and uploads its services.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file CatalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	p.logger.Info("catalog loaded",
		"path", path,
		"provider", file.Metadata.Provider,
		"services", len(file.Services))

	stats, err := p.IngestServices(ctx, file.Services)
	if err != nil {
		return nil, err
	}
	stats.Provider = file.Metadata.Provider
	return stats, nil
}

// IngestServices embeds and uploads the services. Entries whose
// embedding text comes out empty are skipped.
func (p *Pipeline) IngestServices(ctx context.Context, services []catalog.Service) (*Stats, error) {
	stats := &Stats{Loaded: len(services)}

	var valid []catalog.Service
	var texts []string
	for _, svc := range services {
		text := embeddingText(&svc)
		if text == "" {
			stats.Skipped++
			p.logger.Warn("skipping service with empty embedding text", "service_id", svc.ServiceID)
			continue
		}
		valid = append(valid, svc)
		texts = append(texts, text)
	}
	if len(valid) == 0 {
		return stats, nil
	}

	p.logger.Info("generating embeddings", "services", len(valid))
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed services: %w", err)
	}
	if len(vectors) != len(valid) {
		return nil, fmt.Errorf("embedding count mismatch: %d services, %d vectors", len(valid), len(vectors))
	}

	points := make([]vectorstore.UpsertPoint, len(valid))
	for i, svc := range valid {
		payload, err := servicePayload(&svc, texts[i])
		if err != nil {
			return nil, fmt.Errorf("failed to build payload for %s: %w", svc.ServiceID, err)
		}
		points[i] = vectorstore.UpsertPoint{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	for start := 0; start < len(points); start += p.batchSize {
		end := start + p.batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := p.store.Upsert(ctx, points[start:end]); err != nil {
			return nil, fmt.Errorf("failed to upload points %d-%d: %w", start, end, err)
		}
		stats.Uploaded += end - start
		p.logger.Debug("batch uploaded", "uploaded", stats.Uploaded, "total", len(points))
	}

	return stats, nil
}

// servicePayload flattens the service to the payload shape the retriever
// reads back. Round-tripping through JSON keeps the value types identical
// to what the scroll and retrieve paths decode.
func servicePayload(svc *catalog.Service, embeddingText string) (map[string]any, error) {
	data, err := json.Marshal(svc)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	payload["embedding_text"] = embeddingText
	return payload, nil
}

// embeddingText prefers the pre-built text from preprocessing and
// otherwise derives one from the descriptive fields.
func embeddingText(svc *catalog.Service) string {
	if t := strings.TrimSpace(svc.EmbeddingText); t != "" {
		return t
	}

	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	add(svc.ServiceName)
	add(svc.Provider)
	add(svc.Category)
	add(svc.Description)
	add(svc.ShortDescription)
	add(strings.Join(svc.Features, " "))
	add(strings.Join(svc.UseCases, " "))
	add(svc.Specs.DatabaseEngine)

	return strings.TrimSpace(strings.Join(parts, " "))
}
