// Package catalog defines the cloud service records that flow through the
// recommendation pipeline: raw catalog entries, retrieved candidates, and
// final recommendations.
package catalog

// ServiceSpecs holds the technical specification fields of a service.
type ServiceSpecs struct {
	VCPU           *float64 `json:"vcpu,omitempty"`
	MemoryGB       *float64 `json:"memory_gb,omitempty"`
	StorageType    string   `json:"storage_type,omitempty"`
	DatabaseEngine string   `json:"database_engine,omitempty"`
}

// PriceEntry is a single pricing option for a service.
type PriceEntry struct {
	PricePerUnit float64 `json:"price_per_unit"`
	Unit         string  `json:"unit"`
	Region       string  `json:"region,omitempty"`
	Description  string  `json:"description,omitempty"`
}

// Service is a cloud service catalog entry as stored in the vector store
// payload. It is the unit of ingestion.
type Service struct {
	ServiceID   string `json:"service_id"`
	Provider    string `json:"provider"`
	ServiceName string `json:"service_name"`
	ServiceType string `json:"service_type"`
	Category    string `json:"category"`

	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`

	Specs   ServiceSpecs `json:"specs"`
	Pricing []PriceEntry `json:"pricing,omitempty"`

	Features []string `json:"features,omitempty"`
	UseCases []string `json:"use_cases,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	SupportsAutoScaling bool `json:"supports_auto_scaling"`
	SupportsMultiAZ     bool `json:"supports_multi_az"`
	SupportsEncryption  bool `json:"supports_encryption"`

	Region           string   `json:"region,omitempty"`
	AvailableRegions []string `json:"available_regions,omitempty"`

	// EmbeddingText is the pre-built text used for dense embedding at
	// ingestion time. If empty, one is derived from the other fields.
	EmbeddingText string `json:"embedding_text,omitempty"`
}

// Candidate is a service retrieved from the vector store with its
// retrieval-stage scores. Candidates are created fresh per query and are
// read-only afterward.
type Candidate struct {
	// PointID is the vector store point identifier, distinct from the
	// catalog-level ServiceID.
	PointID string

	ServiceID   string
	Provider    string
	ServiceName string
	ServiceType string
	Category    string

	Description      string
	ShortDescription string

	VCPU           *float64
	MemoryGB       *float64
	StorageType    string
	DatabaseEngine string

	// Lowest available price across the pricing entries.
	PricePerUnit *float64
	PriceUnit    string

	Features []string
	UseCases []string

	SupportsAutoScaling bool
	SupportsMultiAZ     bool
	SupportsEncryption  bool

	Region           string
	AvailableRegions []string

	DenseScore  float64
	SparseScore float64
	FusionScore float64

	// RawPayload keeps the full stored payload for downstream consumers.
	RawPayload map[string]any
}

// ScoredCandidate pairs a candidate with its reranking score and the
// feature-based scores added by the multi-dimensional scorer.
type ScoredCandidate struct {
	Candidate *Candidate

	// LLMRelevanceScore is derived from the candidate's final rank after
	// pairwise reranking (10 best .. 1 worst). Rank order is the ground
	// truth; the numeric value is a display artifact.
	LLMRelevanceScore float64
	LLMExplanation    string

	CostEfficiencyScore float64
	CapacityMatchScore  float64
	FeatureMatchScore   float64

	FinalScore float64
	Rank       int
}

// Recommendation is a fully materialized entry in the final ranked list.
type Recommendation struct {
	Rank int `json:"rank"`

	ServiceID   string `json:"service_id"`
	Provider    string `json:"provider"`
	ServiceName string `json:"service_name"`
	ServiceType string `json:"service_type"`
	Category    string `json:"category"`

	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`

	SpecsSummary   string `json:"specs_summary"`
	PricingSummary string `json:"pricing_summary"`
	Explanation    string `json:"explanation"`

	RelevanceScore float64 `json:"relevance_score"` // 0-10
	FinalScore     float64 `json:"final_score"`     // 0-1

	KeyFeatures []string `json:"key_features"`
	Matches     []string `json:"matches"`
	Concerns    []string `json:"concerns"`

	Region string `json:"region,omitempty"`
}
