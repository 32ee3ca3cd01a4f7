package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudcompass/recommender/internal/llm"
)

// Processor extracts structured requirements from a raw query and expands
// the query for retrieval. LLM failures degrade to heuristic parsing so a
// query is never rejected outright.
type Processor struct {
	llmClient llm.LLM
	model     string
	logger    *slog.Logger
}

// ProcessorOption is a functional option for configuring Processor.
type ProcessorOption func(*Processor)

// WithModel sets the chat model used for extraction and expansion.
func WithModel(model string) ProcessorOption {
	return func(p *Processor) {
		p.model = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a query processor backed by the given LLM client.
func NewProcessor(llmClient llm.LLM, opts ...ProcessorOption) *Processor {
	p := &Processor{
		llmClient: llmClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts requirements from the query and attaches an expanded
// retrieval query. All type coercion from the loosely-typed LLM response
// happens here, at the construction boundary; downstream stages see only
// the typed struct.
func (p *Processor) Process(ctx context.Context, rawQuery string) (*Requirements, error) {
	req := p.extract(ctx, rawQuery)
	req.ExpandedQuery = p.expand(ctx, rawQuery, req)
	return req, nil
}

func (p *Processor) extract(ctx context.Context, rawQuery string) *Requirements {
	prompt := fmt.Sprintf(understandingPrompt, rawQuery)

	response, err := p.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:        p.model,
		SystemPrompt: understandingSystem,
		Temperature:  llm.Temp(0.1),
	})
	if err != nil {
		p.logger.Warn("LLM requirement extraction failed, using heuristic parse", "error", err)
		return heuristicParse(rawQuery)
	}

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &fields); err != nil {
		p.logger.Warn("failed to parse extraction response, using heuristic parse", "error", err)
		return heuristicParse(rawQuery)
	}

	return requirementsFromFields(rawQuery, fields)
}

func (p *Processor) expand(ctx context.Context, rawQuery string, req *Requirements) string {
	reqJSON, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		reqJSON = []byte("{}")
	}

	prompt := fmt.Sprintf(expansionPrompt, rawQuery, string(reqJSON))

	expanded, err := p.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       p.model,
		Temperature: llm.Temp(0.5),
	})
	if err != nil || strings.TrimSpace(expanded) == "" {
		if err != nil {
			p.logger.Warn("LLM query expansion failed, using heuristic expansion", "error", err)
		}
		return heuristicExpand(rawQuery, req)
	}

	return strings.Trim(strings.TrimSpace(expanded), `"'`)
}

// requirementsFromFields coerces the loosely-typed LLM response into the
// typed struct. Mistyped values become "not specified" rather than errors.
func requirementsFromFields(rawQuery string, fields map[string]any) *Requirements {
	return &Requirements{
		RawQuery:                  rawQuery,
		ServiceCategories:         coerceStringList(fields["service_categories"]),
		ExpectedUsers:             coerceInt(fields["expected_users"]),
		ExpectedRequestsPerSecond: coerceInt(fields["expected_requests_per_second"]),
		DataSizeGB:                coerceFloat(fields["data_size_gb"]),
		MinVCPU:                   coerceFloat(fields["min_vcpu"]),
		MinMemoryGB:               coerceFloat(fields["min_memory_gb"]),
		MinStorageGB:              coerceFloat(fields["min_storage_gb"]),
		BudgetMonthlyUSD:          coerceFloat(fields["budget_monthly_usd"]),
		BudgetHourlyUSD:           coerceFloat(fields["budget_hourly_usd"]),
		PreferredProviders:        coerceStringList(fields["preferred_providers"]),
		PreferredRegions:          coerceStringList(fields["preferred_regions"]),
		DatabaseEngine:            coerceString(fields["database_engine"]),
		RequiresHighAvailability:  coerceBool(fields["requires_high_availability"]),
		RequiresAutoScaling:       coerceBool(fields["requires_auto_scaling"]),
		RequiresEncryption:        coerceBool(fields["requires_encryption"]),
		UseCase:                   coerceString(fields["use_case"]),
		Keywords:                  coerceStringList(fields["keywords"]),
	}
}

var budgetPattern = regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`)

// categoryKeywords maps service categories to trigger words for the
// heuristic parser.
var categoryKeywords = map[string][]string{
	"compute":    {"vm", "instance", "server", "compute", "ec2", "virtual machine"},
	"database":   {"database", "db", "sql", "mysql", "postgres", "rds", "dynamo"},
	"storage":    {"storage", "s3", "bucket", "blob", "file", "object storage"},
	"serverless": {"serverless", "lambda", "function", "faas"},
	"container":  {"container", "docker", "ecs", "fargate", "cloud run"},
	"kubernetes": {"kubernetes", "k8s", "eks", "gke", "aks"},
}

// heuristicParse is the fallback when the LLM is unavailable or returns
// garbage: keyword category detection, budget regex, provider mentions.
func heuristicParse(rawQuery string) *Requirements {
	lower := strings.ToLower(rawQuery)

	var categories []string
	for _, category := range []string{"compute", "database", "storage", "serverless", "container", "kubernetes"} {
		for _, kw := range categoryKeywords[category] {
			if strings.Contains(lower, kw) {
				categories = append(categories, category)
				break
			}
		}
	}
	if len(categories) == 0 {
		categories = []string{"compute"}
	}

	var budget *float64
	if m := budgetPattern.FindStringSubmatch(rawQuery); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			budget = &v
		}
	}

	var providers []string
	if strings.Contains(lower, "aws") || strings.Contains(lower, "amazon") {
		providers = append(providers, "aws")
	}
	if strings.Contains(lower, "gcp") || strings.Contains(lower, "google") {
		providers = append(providers, "gcp")
	}
	if strings.Contains(lower, "azure") || strings.Contains(lower, "microsoft") {
		providers = append(providers, "azure")
	}

	keywords := strings.Fields(rawQuery)
	if len(keywords) > 10 {
		keywords = keywords[:10]
	}

	return &Requirements{
		RawQuery:           rawQuery,
		ServiceCategories:  categories,
		BudgetMonthlyUSD:   budget,
		PreferredProviders: providers,
		Keywords:           keywords,
	}
}

// categoryExpansions adds provider service names per category so lexical
// search can match catalog entries by name.
var categoryExpansions = map[string]string{
	"compute":    "virtual machine VM instance server EC2 Compute Engine",
	"database":   "database DB SQL relational RDS Cloud SQL Aurora",
	"storage":    "storage S3 GCS bucket object storage blob",
	"serverless": "serverless Lambda Functions FaaS event-driven",
	"container":  "container Docker ECS Fargate Cloud Run",
	"kubernetes": "Kubernetes K8s EKS GKE AKS orchestration",
}

func heuristicExpand(rawQuery string, req *Requirements) string {
	parts := []string{rawQuery}

	for _, category := range req.ServiceCategories {
		if exp, ok := categoryExpansions[category]; ok {
			parts = append(parts, exp)
		}
	}

	if req.DatabaseEngine != "" {
		parts = append(parts, req.DatabaseEngine+" database")
	}

	if len(req.Keywords) > 0 {
		kw := req.Keywords
		if len(kw) > 5 {
			kw = kw[:5]
		}
		parts = append(parts, kw...)
	}

	return strings.Join(parts, " ")
}

// stripCodeFences removes markdown code block wrappers some models add
// despite being told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func coerceString(v any) string {
	s, _ := v.(string)
	return s
}

func coerceStringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}

func coerceFloat(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return &f
		}
		return nil
	default:
		return nil
	}
}

func coerceInt(v any) *int {
	switch val := v.(type) {
	case float64:
		i := int(val)
		return &i
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return &i
		}
		return nil
	default:
		return nil
	}
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(val)
		return lower == "true" || lower == "yes" || lower == "1"
	default:
		return false
	}
}
