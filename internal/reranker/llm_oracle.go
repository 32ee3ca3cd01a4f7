package reranker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/llm"
)

// DefaultCompareTimeout bounds a single pairwise comparison so one stuck
// LLM call cannot stall the whole rerank.
const DefaultCompareTimeout = 30 * time.Second

const comparePrompt = `Given a query, which of the following two cloud services is more relevant?

Query: %s

Service A:
%s

Service B:
%s

Which service better matches the query requirements? Output only "A" or "B".`

// LLMOracle judges candidate pairs with a chat model.
type LLMOracle struct {
	llmClient llm.LLM
	model     string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ Oracle = (*LLMOracle)(nil)

// LLMOracleOption is a functional option for configuring LLMOracle.
type LLMOracleOption func(*LLMOracle)

// WithModel sets the chat model used for comparisons.
func WithModel(model string) LLMOracleOption {
	return func(o *LLMOracle) {
		o.model = model
	}
}

// WithCompareTimeout sets the per-comparison timeout.
func WithCompareTimeout(d time.Duration) LLMOracleOption {
	return func(o *LLMOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithOracleLogger sets the logger.
func WithOracleLogger(logger *slog.Logger) LLMOracleOption {
	return func(o *LLMOracle) {
		o.logger = logger
	}
}

// NewLLMOracle creates an oracle backed by the given LLM client.
func NewLLMOracle(llmClient llm.LLM, opts ...LLMOracleOption) *LLMOracle {
	o := &LLMOracle{
		llmClient: llmClient,
		timeout:   DefaultCompareTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Compare asks the model which candidate better matches the query. An
// ambiguous answer resolves to ChoiceA so the existing order stands.
func (o *LLMOracle) Compare(ctx context.Context, query string, a, b *catalog.Candidate) (Choice, error) {
	prompt := fmt.Sprintf(comparePrompt, query, formatCandidate(a), formatCandidate(b))

	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	response, err := o.llmClient.Generate(cctx, prompt, llm.GenerateOptions{
		Model:       o.model,
		Temperature: llm.Temp(0.0),
		MaxTokens:   10,
	})
	if err != nil {
		return ChoiceA, fmt.Errorf("failed to compare candidates: %w", err)
	}

	return parseChoice(response, o.logger), nil
}

// parseChoice extracts A or B from a model answer that may carry extra
// tokens despite the instruction.
func parseChoice(response string, logger *slog.Logger) Choice {
	result := strings.ToUpper(strings.TrimSpace(response))

	hasA := strings.Contains(result, "A")
	hasB := strings.Contains(result, "B")

	switch {
	case hasA && !hasB:
		return ChoiceA
	case hasB && !hasA:
		return ChoiceB
	case strings.HasPrefix(result, "A"):
		return ChoiceA
	case strings.HasPrefix(result, "B"):
		return ChoiceB
	default:
		logger.Debug("ambiguous comparison answer, keeping order", "response", response)
		return ChoiceA
	}
}

// formatCandidate renders the fields the judge needs: identity, a short
// description, the headline specs, and up to three features.
func formatCandidate(c *catalog.Candidate) string {
	desc := c.ShortDescription
	if desc == "" {
		desc = c.Description
		if len(desc) > 200 {
			desc = desc[:200]
		}
	}

	parts := []string{
		"Service: " + c.ServiceName,
		"Provider: " + strings.ToUpper(c.Provider),
		"Category: " + c.Category,
		"Description: " + desc,
	}

	if c.VCPU != nil {
		parts = append(parts, fmt.Sprintf("vCPU: %g", *c.VCPU))
	}
	if c.MemoryGB != nil {
		parts = append(parts, fmt.Sprintf("Memory: %g GB", *c.MemoryGB))
	}
	if c.DatabaseEngine != "" {
		parts = append(parts, "Database: "+c.DatabaseEngine)
	}
	if c.PricePerUnit != nil {
		unit := c.PriceUnit
		if unit == "" {
			unit = "unit"
		}
		parts = append(parts, fmt.Sprintf("Price: $%.6f per %s", *c.PricePerUnit, unit))
	}
	if len(c.Features) > 0 {
		features := c.Features
		if len(features) > 3 {
			features = features[:3]
		}
		parts = append(parts, "Features: "+strings.Join(features, ", "))
	}

	return strings.Join(parts, "\n")
}
