package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudcompass/recommender/internal/config"
	"github.com/cloudcompass/recommender/internal/embedder"
	"github.com/cloudcompass/recommender/internal/llm"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/recommend"
	"github.com/cloudcompass/recommender/internal/repository"
	"github.com/cloudcompass/recommender/internal/repository/postgres"
	"github.com/cloudcompass/recommender/internal/reranker"
	"github.com/cloudcompass/recommender/internal/retriever"
	"github.com/cloudcompass/recommender/internal/scorer"
	"github.com/cloudcompass/recommender/internal/server"
	"github.com/cloudcompass/recommender/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting recommendation service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
		URL:        cfg.QdrantGRPCURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(
		embedder.WithBaseURL(cfg.OllamaURL),
		embedder.WithModel(cfg.OllamaEmbeddingModel),
	)
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Initialize Ollama LLM
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaChatModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaChatModel)

	// Optional history store
	var history repository.HistoryRepository
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		history = postgres.NewHistoryRepo(db)
		slog.Info("connected to PostgreSQL history store")
	} else {
		slog.Info("no DATABASE_URL configured, history persistence disabled")
	}

	// Assemble the pipeline stages
	processor := query.NewProcessor(llmClient, query.WithModel(cfg.OllamaChatModel))

	hybrid, err := retriever.NewHybridRetriever(ctx, vectorStore, embed, retriever.Config{
		DenseTopK:      cfg.DenseTopK,
		SparseTopK:     cfg.SparseTopK,
		FusionTopK:     cfg.FusionTopK,
		ScoreThreshold: cfg.ScoreThreshold,
		RRFK:           cfg.RRFK,
		BM25K1:         cfg.BM25K1,
		BM25B:          cfg.BM25B,
	})
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	oracle := reranker.NewLLMOracle(llmClient,
		reranker.WithModel(cfg.OllamaChatModel),
		reranker.WithCompareTimeout(cfg.CompareTimeout),
	)
	pairwise := reranker.NewPairwiseReranker(oracle,
		reranker.WithMaxCandidates(cfg.RerankMaxCandidates),
		reranker.WithTopK(cfg.TopKResults),
	)

	multiScorer := scorer.New(scorer.Config{
		Weights: scorer.Weights{
			LLMRelevance:   cfg.LLMRelevanceWeight,
			CostEfficiency: cfg.CostEfficiencyWeight,
			CapacityMatch:  cfg.CapacityMatchWeight,
			FeatureMatch:   cfg.FeatureMatchWeight,
		},
		BudgetTolerance: cfg.BudgetTolerance,
		TopK:            cfg.TopKResults,
		DiversityBoost:  cfg.DiversityBoost,
	})

	pipeline := recommend.New(processor, hybrid, pairwise, multiScorer, llmClient,
		recommend.WithChatModel(cfg.OllamaChatModel))

	// Create HTTP server
	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		APIKey:         cfg.APIKey,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		Pipeline:       pipeline,
		History:        history,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ vectorstore.VectorStore = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder       = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                 = (*llm.OllamaClient)(nil)
)
