// Package config loads configuration from environment variables and .env files.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the recommendation service
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// APIKey protects the HTTP API when set; empty disables auth.
	APIKey string `env:"API_KEY"`

	// PostgreSQL history store; empty disables history persistence.
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant
	QdrantGRPCURL    string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantAPIKey     string `env:"QDRANT_API_KEY"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"cloud_services"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"embeddinggemma:300m"`
	OllamaChatModel      string `env:"OLLAMA_CHAT_MODEL" envDefault:"gemma3:4b"`

	// Retrieval
	DenseTopK      int     `env:"DENSE_TOP_K" envDefault:"30"`
	SparseTopK     int     `env:"SPARSE_TOP_K" envDefault:"30"`
	FusionTopK     int     `env:"FUSION_TOP_K" envDefault:"25"`
	ScoreThreshold float64 `env:"SCORE_THRESHOLD" envDefault:"0.3"`
	RRFK           int     `env:"RRF_K" envDefault:"60"`
	BM25K1         float64 `env:"BM25_K1" envDefault:"1.5"`
	BM25B          float64 `env:"BM25_B" envDefault:"0.75"`

	// Reranking
	RerankMaxCandidates int           `env:"RERANK_MAX_CANDIDATES" envDefault:"20"`
	CompareTimeout      time.Duration `env:"COMPARE_TIMEOUT" envDefault:"30s"`

	// Scoring
	TopKResults          int     `env:"TOP_K_RESULTS" envDefault:"5"`
	LLMRelevanceWeight   float64 `env:"LLM_RELEVANCE_WEIGHT" envDefault:"0.5"`
	CostEfficiencyWeight float64 `env:"COST_EFFICIENCY_WEIGHT" envDefault:"0.2"`
	CapacityMatchWeight  float64 `env:"CAPACITY_MATCH_WEIGHT" envDefault:"0.2"`
	FeatureMatchWeight   float64 `env:"FEATURE_MATCH_WEIGHT" envDefault:"0.1"`
	BudgetTolerance      float64 `env:"BUDGET_TOLERANCE" envDefault:"1.2"`
	DiversityBoost       float64 `env:"DIVERSITY_BOOST" envDefault:"1.05"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
