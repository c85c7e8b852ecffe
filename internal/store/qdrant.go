package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore manages per-user collections in a Qdrant instance.
type QdrantStore struct {
	client    *qdrant.Client
	dimension int

	mu    sync.Mutex
	known map[string]bool // collections already ensured this process
}

// NewQdrantStore connects to Qdrant over gRPC and validates reachability with
// exponential backoff. It fails fast with ErrUnavailable if Qdrant stays down.
func NewQdrantStore(host string, port int, dimension int) (*QdrantStore, error) {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:    client,
		dimension: dimension,
		known:     make(map[string]bool),
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Collection returns the handle for a user's collection, creating it on first
// use. The handle is bound to the user's namespace and cannot reach any other.
func (s *QdrantStore) Collection(ctx context.Context, userID string) (Collection, error) {
	name := CollectionName(userID)
	if err := s.ensureCollection(ctx, name); err != nil {
		return nil, err
	}
	return &qdrantCollection{client: s.client, name: name, dimension: s.dimension}, nil
}

// ensureCollection creates the collection and its payload index if missing.
// Idempotent; results are cached so ingest and query paths skip the roundtrip.
func (s *QdrantStore) ensureCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.known[name] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", ErrUnavailable, err)
	}
	exists := false
	for _, existing := range collections {
		if existing == name {
			exists = true
			break
		}
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("%w: create collection %s: %v", ErrUnavailable, name, err)
		}

		// Index the document id so delete-by-document stays fast.
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      "document_id",
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("%w: create document_id index: %v", ErrUnavailable, err)
		}
	}

	s.mu.Lock()
	s.known[name] = true
	s.mu.Unlock()
	return nil
}

// Drop deletes a user's collection entirely.
func (s *QdrantStore) Drop(ctx context.Context, userID string) error {
	name := CollectionName(userID)
	s.mu.Lock()
	delete(s.known, name)
	s.mu.Unlock()

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", ErrUnavailable, name, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// qdrantCollection is a user-scoped handle over one Qdrant collection.
type qdrantCollection struct {
	client    *qdrant.Client
	name      string
	dimension int
}

func (c *qdrantCollection) Upsert(ctx context.Context, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	for i, vec := range vectors {
		if len(vec) != c.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(vec), c.dimension)
		}
	}

	// Batch upserts in groups of 100.
	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			chunk := chunks[j]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectors(vectors[j]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id":  chunk.DocumentID,
					"filename":     chunk.Filename,
					"chunk_index":  chunk.Index,
					"start_offset": chunk.StartOffset,
					"end_offset":   chunk.EndOffset,
					"text":         chunk.Text,
				}),
			})
		}
		if err := c.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %v", ErrUnavailable, i, end, err)
		}
	}
	return nil
}

func (c *qdrantCollection) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

func (c *qdrantCollection) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrUnavailable, documentID, err)
	}
	return nil
}

func (c *qdrantCollection) Query(ctx context.Context, vector []float32, k int) ([]*ScoredChunk, error) {
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), c.dimension)
	}
	if k <= 0 {
		return []*ScoredChunk{}, nil
	}

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, &ScoredChunk{
			Chunk: &Chunk{
				ID:          result.Id.GetUuid(),
				DocumentID:  payload["document_id"].GetStringValue(),
				Filename:    payload["filename"].GetStringValue(),
				Index:       int(payload["chunk_index"].GetIntegerValue()),
				StartOffset: int(payload["start_offset"].GetIntegerValue()),
				EndOffset:   int(payload["end_offset"].GetIntegerValue()),
				Text:        payload["text"].GetStringValue(),
			},
			Score: result.Score,
		})
	}
	return scored, nil
}

func (c *qdrantCollection) Count(ctx context.Context) (uint64, error) {
	count, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return count, nil
}
