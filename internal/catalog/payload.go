package catalog

import "math"

// CandidateFromPayload materializes a Candidate from a vector store payload.
// Payload values come from JSON-shaped data, so numbers arrive as float64
// and lists as []any; missing or mistyped fields default to zero values.
func CandidateFromPayload(payload map[string]any) *Candidate {
	c := &Candidate{
		ServiceID:        payloadString(payload, "service_id"),
		Provider:         payloadString(payload, "provider"),
		ServiceName:      payloadString(payload, "service_name"),
		ServiceType:      payloadString(payload, "service_type"),
		Category:         payloadString(payload, "category"),
		Description:      payloadString(payload, "description"),
		ShortDescription: payloadString(payload, "short_description"),

		Features: payloadStringList(payload, "features"),
		UseCases: payloadStringList(payload, "use_cases"),

		SupportsAutoScaling: payloadBool(payload, "supports_auto_scaling"),
		SupportsMultiAZ:     payloadBool(payload, "supports_multi_az"),
		SupportsEncryption:  payloadBool(payload, "supports_encryption"),

		Region:           payloadString(payload, "region"),
		AvailableRegions: payloadStringList(payload, "available_regions"),

		RawPayload: payload,
	}

	if specs, ok := payload["specs"].(map[string]any); ok {
		c.VCPU = payloadFloatPtr(specs, "vcpu")
		c.MemoryGB = payloadFloatPtr(specs, "memory_gb")
		c.StorageType = payloadString(specs, "storage_type")
		c.DatabaseEngine = payloadString(specs, "database_engine")
	}

	c.PricePerUnit, c.PriceUnit = lowestPrice(payload)

	return c
}

// lowestPrice picks the cheapest entry from the payload's pricing list.
func lowestPrice(payload map[string]any) (*float64, string) {
	entries, ok := payload["pricing"].([]any)
	if !ok || len(entries) == 0 {
		return nil, ""
	}

	best := math.Inf(1)
	bestUnit := ""
	found := false

	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		price, ok := entry["price_per_unit"].(float64)
		if !ok {
			continue
		}
		if price < best {
			best = price
			bestUnit = payloadString(entry, "unit")
			found = true
		}
	}

	if !found {
		return nil, ""
	}
	return &best, bestUnit
}

func payloadString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func payloadBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func payloadFloatPtr(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func payloadStringList(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
