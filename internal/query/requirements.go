// Package query turns free-text infrastructure requests into typed,
// validated requirements ready for retrieval.
package query

// Requirements holds the structured requirements extracted from a user
// query. Optional numeric fields are pointers so "not specified" is
// distinguishable from zero. Instances are immutable once produced.
type Requirements struct {
	// RawQuery is the original user query.
	RawQuery string `json:"raw_query"`

	// ServiceCategories are the requested categories (compute, database, ...).
	ServiceCategories []string `json:"service_categories,omitempty"`

	// Scale requirements
	ExpectedUsers             *int     `json:"expected_users,omitempty"`
	ExpectedRequestsPerSecond *int     `json:"expected_requests_per_second,omitempty"`
	DataSizeGB                *float64 `json:"data_size_gb,omitempty"`

	// Resource requirements
	MinVCPU      *float64 `json:"min_vcpu,omitempty"`
	MinMemoryGB  *float64 `json:"min_memory_gb,omitempty"`
	MinStorageGB *float64 `json:"min_storage_gb,omitempty"`

	// Budget constraints
	BudgetMonthlyUSD *float64 `json:"budget_monthly_usd,omitempty"`
	BudgetHourlyUSD  *float64 `json:"budget_hourly_usd,omitempty"`

	// Preferences
	PreferredProviders []string `json:"preferred_providers,omitempty"`
	PreferredRegions   []string `json:"preferred_regions,omitempty"`

	// Technical requirements
	DatabaseEngine           string `json:"database_engine,omitempty"`
	RequiresHighAvailability bool   `json:"requires_high_availability"`
	RequiresAutoScaling      bool   `json:"requires_auto_scaling"`
	RequiresEncryption       bool   `json:"requires_encryption"`

	// UseCase is a short description of the workload (web app, batch, ...).
	UseCase string `json:"use_case,omitempty"`

	// ExpandedQuery is the retrieval-oriented expansion of the raw query.
	ExpandedQuery string `json:"expanded_query,omitempty"`

	// Keywords extracted from the query.
	Keywords []string `json:"keywords,omitempty"`
}

// SearchQuery returns the text to use for retrieval: the expanded query
// when present, otherwise the raw query.
func (r *Requirements) SearchQuery() string {
	if r.ExpandedQuery != "" {
		return r.ExpandedQuery
	}
	return r.RawQuery
}
