package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cloudcompass/recommender/internal/catalog"
	"github.com/cloudcompass/recommender/internal/query"
	"github.com/cloudcompass/recommender/internal/repository"
)

// HistoryRepo implements repository.HistoryRepository
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new history repository
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

// Save stores a pipeline run.
func (r *HistoryRepo) Save(ctx context.Context, record *repository.RecommendationRecord) error {
	requirementsJSON, err := json.Marshal(record.Requirements)
	if err != nil {
		return fmt.Errorf("failed to marshal requirements: %w", err)
	}
	recommendationsJSON, err := json.Marshal(record.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	sql := `
		INSERT INTO recommendation_history
			(id, query, requirements, recommendations, summary,
			 candidates_retrieved, candidates_reranked, processing_millis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Pool.Exec(ctx, sql,
		record.ID, record.Query, requirementsJSON, recommendationsJSON, record.Summary,
		record.CandidatesRetrieved, record.CandidatesReranked, record.ProcessingMillis,
		record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recommendation record: %w", err)
	}
	return nil
}

// GetByID retrieves a stored run by ID.
func (r *HistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.RecommendationRecord, error) {
	sql := `
		SELECT id, query, requirements, recommendations, summary,
		       candidates_retrieved, candidates_reranked, processing_millis, created_at
		FROM recommendation_history
		WHERE id = $1
	`
	record, err := scanRecord(r.db.Pool.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recommendation record: %w", err)
	}
	return record, nil
}

// ListRecent returns stored runs, newest first, with the total count.
func (r *HistoryRepo) ListRecent(ctx context.Context, limit, offset int) ([]*repository.RecommendationRecord, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM recommendation_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count recommendation records: %w", err)
	}

	sql := `
		SELECT id, query, requirements, recommendations, summary,
		       candidates_retrieved, candidates_reranked, processing_millis, created_at
		FROM recommendation_history
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recommendation records: %w", err)
	}
	defer rows.Close()

	var records []*repository.RecommendationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan recommendation record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate recommendation records: %w", err)
	}

	return records, total, nil
}

func scanRecord(row pgx.Row) (*repository.RecommendationRecord, error) {
	var record repository.RecommendationRecord
	var requirementsJSON, recommendationsJSON []byte

	err := row.Scan(
		&record.ID, &record.Query, &requirementsJSON, &recommendationsJSON, &record.Summary,
		&record.CandidatesRetrieved, &record.CandidatesReranked, &record.ProcessingMillis,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Requirements = &query.Requirements{}
	if err := json.Unmarshal(requirementsJSON, record.Requirements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requirements: %w", err)
	}
	record.Recommendations = []catalog.Recommendation{}
	if err := json.Unmarshal(recommendationsJSON, &record.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}

	return &record, nil
}
