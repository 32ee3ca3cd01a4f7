// Package scorer fuses reranker output with feature-based scores into
// the final ranked recommendation list.
package scorer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/query"
)

// hoursPerMonth is the standard 730-hour month used for converting
// hourly prices to monthly estimates.
const hoursPerMonth = 730

// Weights control the final score fusion. They should sum to 1.
type Weights struct {
	LLMRelevance   float64
	CostEfficiency float64
	CapacityMatch  float64
	FeatureMatch   float64
}

// DefaultWeights favors the LLM's relevance judgment, with cost and
// capacity as secondary signals.
var DefaultWeights = Weights{
	LLMRelevance:   0.5,
	CostEfficiency: 0.2,
	CapacityMatch:  0.2,
	FeatureMatch:   0.1,
}

// Config tunes the scorer.
type Config struct {
	Weights Weights

	// BudgetTolerance is the overage multiplier still considered
	// acceptable, e.g. 1.2 allows 20% over budget at a reduced score.
	BudgetTolerance float64

	// TopK caps the final recommendation list.
	TopK int

	// DiversityBoost multiplies the best candidate per provider; 0
	// disables the boost.
	DiversityBoost float64
}

// Scorer computes feature scores, fuses them with the reranker's
// relevance scores, and materializes recommendations.
type Scorer struct {
	cfg    Config
	logger *slog.Logger
}

// Option is a functional option for configuring Scorer.
type Option func(*Scorer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		s.logger = logger
	}
}

// New creates a scorer. Zero config fields fall back to defaults.
func New(cfg Config, opts ...Option) *Scorer {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	if cfg.BudgetTolerance <= 1 {
		cfg.BudgetTolerance = 1.2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.DiversityBoost < 0 {
		cfg.DiversityBoost = 0
	}

	s := &Scorer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreAndRank computes the final scores, applies the provider diversity
// boost, and returns the top recommendations. A positive topK overrides
// the configured cut for this call only.
func (s *Scorer) ScoreAndRank(req *query.Requirements, scored []*catalog.ScoredCandidate, topK int) []catalog.Recommendation {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	for _, sc := range scored {
		sc.CostEfficiencyScore = s.costScore(req, sc.Candidate)
		sc.CapacityMatchScore = capacityScore(req, sc.Candidate)
		sc.FeatureMatchScore = featureMatchScore(req, sc.Candidate)

		w := s.cfg.Weights
		sc.FinalScore = sc.LLMRelevanceScore/10.0*w.LLMRelevance +
			sc.CostEfficiencyScore*w.CostEfficiency +
			sc.CapacityMatchScore*w.CapacityMatch +
			sc.FeatureMatchScore*w.FeatureMatch
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].FinalScore > scored[b].FinalScore
	})

	if s.cfg.DiversityBoost > 0 {
		s.applyDiversityBoost(scored)
	}

	recommendations := s.materialize(req, scored)
	if len(recommendations) > topK {
		recommendations = recommendations[:topK]
	}

	s.logger.Debug("scoring complete",
		"candidates", len(scored),
		"recommendations", len(recommendations))

	return recommendations
}

// costScore rates how well the candidate's estimated monthly cost fits
// the stated budget. No budget means neutral; no price means slightly
// below neutral since the fit is unknown.
func (s *Scorer) costScore(req *query.Requirements, c *catalog.Candidate) float64 {
	var budget float64
	switch {
	case req.BudgetMonthlyUSD != nil:
		budget = *req.BudgetMonthlyUSD
	case req.BudgetHourlyUSD != nil:
		budget = *req.BudgetHourlyUSD * hoursPerMonth
	default:
		return 0.5
	}
	if budget <= 0 {
		return 0.5
	}
	if c.PricePerUnit == nil {
		return 0.3
	}

	monthly := monthlyCost(*c.PricePerUnit, c.PriceUnit)
	tolerance := s.cfg.BudgetTolerance

	switch {
	case monthly <= budget:
		// Under budget: closer to the budget suggests a more capable
		// service, so the score rises toward 1.
		return 0.7 + (monthly/budget)*0.3
	case monthly <= budget*tolerance:
		overage := (monthly - budget) / (budget * (tolerance - 1))
		return 0.5 - overage*0.2
	default:
		score := 0.3 - (monthly/budget-tolerance)*0.1
		if score < 0.1 {
			score = 0.1
		}
		return score
	}
}

// monthlyCost converts a unit price to a monthly estimate. Unknown units
// are treated as hourly, the most common case in the catalog.
func monthlyCost(price float64, unit string) float64 {
	u := strings.ToLower(unit)
	switch {
	case strings.Contains(u, "hour"):
		return price * hoursPerMonth
	case strings.Contains(u, "month"):
		return price
	case strings.Contains(u, "day"):
		return price * 30
	default:
		return price * hoursPerMonth
	}
}

// capacityScore averages per-dimension fit for vCPU and memory. Meeting
// a requirement scores 0.7-1.0 (tight fit beats waste); falling short
// scores proportionally up to 0.6.
func capacityScore(req *query.Requirements, c *catalog.Candidate) float64 {
	var scores []float64

	dimension := func(required, actual *float64) {
		if required == nil || actual == nil || *required <= 0 {
			return
		}
		if *actual >= *required {
			scores = append(scores, 0.7+(*required / *actual)*0.3)
		} else {
			scores = append(scores, (*actual / *required)*0.6)
		}
	}

	dimension(req.MinVCPU, c.VCPU)
	dimension(req.MinMemoryGB, c.MemoryGB)

	if len(scores) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

// featureMatchScore is the fraction of stated boolean requirements the
// candidate satisfies, or 0.5 when nothing was required.
func featureMatchScore(req *query.Requirements, c *catalog.Candidate) float64 {
	matches, required := 0, 0

	if req.DatabaseEngine != "" {
		required++
		if c.DatabaseEngine != "" &&
			strings.Contains(strings.ToLower(c.DatabaseEngine), strings.ToLower(req.DatabaseEngine)) {
			matches++
		}
	}
	if req.RequiresHighAvailability {
		required++
		if c.SupportsMultiAZ {
			matches++
		}
	}
	if req.RequiresAutoScaling {
		required++
		if c.SupportsAutoScaling {
			matches++
		}
	}
	if req.RequiresEncryption {
		required++
		if c.SupportsEncryption {
			matches++
		}
	}

	if required == 0 {
		return 0.5
	}
	return float64(matches) / float64(required)
}

// applyDiversityBoost multiplies the best-scoring candidate of each
// provider, then re-sorts, so a strong runner-up from another provider
// can edge out a same-provider duplicate.
func (s *Scorer) applyDiversityBoost(scored []*catalog.ScoredCandidate) {
	if len(scored) <= 2 {
		return
	}

	boosted := make(map[string]bool)
	for _, sc := range scored {
		provider := sc.Candidate.Provider
		if !boosted[provider] {
			sc.FinalScore *= s.cfg.DiversityBoost
			boosted[provider] = true
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].FinalScore > scored[b].FinalScore
	})
}

func (s *Scorer) materialize(req *query.Requirements, scored []*catalog.ScoredCandidate) []catalog.Recommendation {
	recommendations := make([]catalog.Recommendation, 0, len(scored))

	for i, sc := range scored {
		c := sc.Candidate
		sc.Rank = i + 1

		keyFeatures := c.Features
		if len(keyFeatures) > 5 {
			keyFeatures = keyFeatures[:5]
		}

		recommendations = append(recommendations, catalog.Recommendation{
			Rank:             sc.Rank,
			ServiceID:        c.ServiceID,
			Provider:         c.Provider,
			ServiceName:      c.ServiceName,
			ServiceType:      c.ServiceType,
			Category:         c.Category,
			Description:      c.Description,
			ShortDescription: c.ShortDescription,
			SpecsSummary:     specsSummary(c),
			PricingSummary:   pricingSummary(c),
			Explanation:      sc.LLMExplanation,
			RelevanceScore:   sc.LLMRelevanceScore,
			FinalScore:       sc.FinalScore,
			KeyFeatures:      keyFeatures,
			Matches:          identifyMatches(req, c, sc),
			Concerns:         identifyConcerns(req, c, sc),
			Region:           c.Region,
		})
	}

	return recommendations
}

func specsSummary(c *catalog.Candidate) string {
	var parts []string
	if c.VCPU != nil {
		parts = append(parts, fmt.Sprintf("%g vCPU", *c.VCPU))
	}
	if c.MemoryGB != nil {
		parts = append(parts, fmt.Sprintf("%g GB RAM", *c.MemoryGB))
	}
	if c.StorageType != "" {
		parts = append(parts, c.StorageType)
	}
	if c.DatabaseEngine != "" {
		parts = append(parts, c.DatabaseEngine)
	}
	if len(parts) == 0 {
		return "Specs vary by configuration"
	}
	return strings.Join(parts, ", ")
}

func pricingSummary(c *catalog.Candidate) string {
	if c.PricePerUnit == nil {
		return "Pricing varies by configuration"
	}
	unit := c.PriceUnit
	if unit == "" {
		unit = "unit"
	}
	summary := fmt.Sprintf("$%.4f per %s", *c.PricePerUnit, unit)
	if strings.Contains(strings.ToLower(unit), "hour") {
		summary += fmt.Sprintf(" (~$%.2f/month)", *c.PricePerUnit*hoursPerMonth)
	}
	return summary
}

func identifyMatches(req *query.Requirements, c *catalog.Candidate, sc *catalog.ScoredCandidate) []string {
	var matches []string

	for _, category := range req.ServiceCategories {
		if c.Category == category {
			matches = append(matches, "Matches required category: "+c.Category)
			break
		}
	}
	if req.DatabaseEngine != "" && c.DatabaseEngine != "" &&
		strings.Contains(strings.ToLower(c.DatabaseEngine), strings.ToLower(req.DatabaseEngine)) {
		matches = append(matches, "Supports "+req.DatabaseEngine)
	}
	if sc.CostEfficiencyScore >= 0.7 {
		matches = append(matches, "Within budget")
	}
	if req.RequiresHighAvailability && c.SupportsMultiAZ {
		matches = append(matches, "High availability supported")
	}
	if req.RequiresAutoScaling && c.SupportsAutoScaling {
		matches = append(matches, "Auto-scaling supported")
	}
	if req.RequiresEncryption && c.SupportsEncryption {
		matches = append(matches, "Encryption supported")
	}

	return matches
}

func identifyConcerns(req *query.Requirements, c *catalog.Candidate, sc *catalog.ScoredCandidate) []string {
	var concerns []string

	if sc.CostEfficiencyScore < 0.5 {
		concerns = append(concerns, "May exceed budget")
	}
	if sc.CapacityMatchScore < 0.5 {
		concerns = append(concerns, "Capacity may be insufficient")
	}
	if req.RequiresHighAvailability && !c.SupportsMultiAZ {
		concerns = append(concerns, "High availability not confirmed")
	}
	if req.RequiresAutoScaling && !c.SupportsAutoScaling {
		concerns = append(concerns, "Auto-scaling not confirmed")
	}

	return concerns
}
