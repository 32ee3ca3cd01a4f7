package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// QdrantConfig holds connection settings for the Qdrant store.
type QdrantConfig struct {
	// URL is the gRPC endpoint in "host:port" form (e.g. "localhost:6334").
	URL string

	// APIKey authenticates against managed Qdrant instances. Optional.
	APIKey string

	// Collection is the collection this store operates on.
	Collection string

	// GrpcOptions are extra dial options passed through to the client.
	GrpcOptions []grpc.DialOption
}

// NewQdrantStore creates a new Qdrant vector store client bound to a
// single collection.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(cfg.URL)
	if err != nil {
		// If no port specified, assume the default gRPC port
		host = cfg.URL
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        host,
		Port:        port,
		APIKey:      cfg.APIKey,
		GrpcOptions: cfg.GrpcOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// CreateCollection creates the collection with cosine distance.
func (s *QdrantStore) CreateCollection(ctx context.Context, dimension int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CollectionExists checks if the collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// DeleteCollection drops the collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Upsert inserts or updates points in the collection.
func (s *QdrantStore) Upsert(ctx context.Context, points []UpsertPoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return count, nil
}

// Search performs dense similarity search with an optional payload filter.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter *Filter, scoreThreshold float32) ([]ScoredPoint, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if scoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(scoreThreshold)
	}
	if qf := buildQdrantFilter(filter); qf != nil {
		query.Filter = qf
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]ScoredPoint, 0, len(response))
	for _, point := range response {
		results = append(results, ScoredPoint{
			ID:      point.Id.GetUuid(),
			Score:   float64(point.Score),
			Payload: payloadToMap(point.Payload),
		})
	}
	return results, nil
}

// Scroll pages through the collection. The raw points API is used because
// the iteration needs the next-page offset.
func (s *QdrantStore) Scroll(ctx context.Context, limit int, offset string) ([]Point, string, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if offset != "" {
		req.Offset = qdrant.NewIDUUID(offset)
	}

	resp, err := s.client.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scroll: %w", err)
	}

	points := make([]Point, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		points = append(points, Point{
			ID:      p.Id.GetUuid(),
			Payload: payloadToMap(p.Payload),
		})
	}

	next := ""
	if off := resp.GetNextPageOffset(); off != nil {
		next = off.GetUuid()
	}
	return points, next, nil
}

// Retrieve fetches points by ID with their payloads.
func (s *QdrantStore) Retrieve(ctx context.Context, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	response, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve points: %w", err)
	}

	points := make([]Point, 0, len(response))
	for _, p := range response {
		points = append(points, Point{
			ID:      p.Id.GetUuid(),
			Payload: payloadToMap(p.Payload),
		})
	}
	return points, nil
}

// buildQdrantFilter translates the store-agnostic filter into a Qdrant
// filter with match-any conditions.
func buildQdrantFilter(filter *Filter) *qdrant.Filter {
	if filter.Empty() {
		return nil
	}

	var conditions []*qdrant.Condition
	if len(filter.Providers) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("provider", filter.Providers...))
	}
	if len(filter.Categories) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("category", filter.Categories...))
	}

	return &qdrant.Filter{Must: conditions}
}

// payloadToMap converts a Qdrant payload into plain JSON-shaped Go values.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		// Integers surface as float64 to match JSON decoding downstream.
		return float64(kind.IntegerValue)
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, valueToAny(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
