// Package vectorstore provides interfaces and implementations for vector
// similarity search over the cloud service catalog.
package vectorstore

import (
	"context"
)

// Filter restricts dense search to services matching any of the given
// providers and any of the given categories. Empty slices mean no
// restriction on that field.
type Filter struct {
	Providers  []string
	Categories []string
}

// Empty reports whether the filter imposes no conditions.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Providers) == 0 && len(f.Categories) == 0)
}

// ScoredPoint is a dense search hit.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Point is a stored point with its payload.
type Point struct {
	ID      string
	Payload map[string]any
}

// UpsertPoint is a point to be written at ingestion time.
type UpsertPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// VectorStore defines the operations the recommender needs from a vector
// database. One store instance is bound to one collection.
type VectorStore interface {
	// CreateCollection creates the collection with the given vector dimension.
	CreateCollection(ctx context.Context, dimension int) error

	// CollectionExists checks whether the collection exists.
	CollectionExists(ctx context.Context) (bool, error)

	// DeleteCollection drops the collection.
	DeleteCollection(ctx context.Context) error

	// Upsert inserts or updates points.
	Upsert(ctx context.Context, points []UpsertPoint) error

	// Count returns the number of stored points.
	Count(ctx context.Context) (uint64, error)

	// Search performs dense similarity search. A nil or empty filter matches
	// everything; hits below scoreThreshold are excluded.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter, scoreThreshold float32) ([]ScoredPoint, error)

	// Scroll iterates the collection page by page. Pass an empty offset to
	// start; an empty returned offset means the iteration is complete.
	Scroll(ctx context.Context, limit int, offset string) ([]Point, string, error)

	// Retrieve fetches points by ID. Unknown IDs are silently absent from
	// the result.
	Retrieve(ctx context.Context, ids []string) ([]Point, error)
}
