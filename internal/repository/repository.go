// Package repository defines domain models and data access interfaces
// for recommendation history.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/query"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RecommendationRecord is one stored pipeline run: the query, what the
// processor understood, and the final ranked list.
type RecommendationRecord struct {
	ID    uuid.UUID
	Query string

	Requirements    *query.Requirements
	Recommendations []catalog.Recommendation
	Summary         string

	CandidatesRetrieved int
	CandidatesReranked  int
	ProcessingMillis    int64

	CreatedAt time.Time
}

// HistoryRepository defines operations for recommendation history
// persistence.
type HistoryRepository interface {
	Save(ctx context.Context, record *RecommendationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*RecommendationRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*RecommendationRecord, int, error)
}
