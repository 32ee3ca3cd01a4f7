// Command ingest loads standardized cloud service catalogs into the
// vector store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudcompass/recommender/internal/config"
	"github.com/cloudcompass/recommender/internal/embedder"
	"github.com/cloudcompass/recommender/internal/ingest"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		provider = flag.String("provider", "", "provider to ingest (aws, gcp, azure); empty ingests all")
		dataDir  = flag.String("data-dir", "./data", "base directory containing per-provider catalog folders")
		file     = flag.String("file", "", "ingest a single catalog file instead of a provider directory")
		recreate = flag.Bool("recreate", false, "drop and recreate the collection before ingesting")
	)
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
		URL:        cfg.QdrantGRPCURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	emb := embedder.NewOllamaEmbedder(
		embedder.WithBaseURL(cfg.OllamaURL),
		embedder.WithModel(cfg.OllamaEmbeddingModel),
	)

	pipeline := ingest.New(store, emb)

	if err := pipeline.EnsureCollection(ctx, *recreate); err != nil {
		return err
	}

	var files []string
	switch {
	case *file != "":
		files = []string{*file}
	case *provider != "":
		files = []string{providerPath(*dataDir, *provider)}
	default:
		for _, p := range []string{"aws", "gcp", "azure"} {
			path := providerPath(*dataDir, p)
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
			} else {
				slog.Warn("skipping provider, catalog file not found", "provider", p, "path", path)
			}
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no catalog files to ingest under %s", *dataDir)
	}

	for _, path := range files {
		stats, err := pipeline.IngestFile(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		slog.Info("ingestion complete",
			"provider", stats.Provider,
			"loaded", stats.Loaded,
			"skipped", stats.Skipped,
			"uploaded", stats.Uploaded)
	}

	count, err := store.Count(ctx)
	if err != nil {
		slog.Warn("failed to count collection points", "error", err)
	} else {
		slog.Info("collection status", "points", count)
	}

	return nil
}

func providerPath(dataDir, provider string) string {
	lower := strings.ToLower(provider)
	return filepath.Join(dataDir, strings.ToUpper(provider), lower+"_standardized_services.json")
}
