package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store using brute-force cosine similarity.
// It backs local deployments and the test suite; the retrieval contract
// (top-k by similarity, deterministic for identical inputs) matches the
// Qdrant backend, with score ties broken by insertion order.
type MemoryStore struct {
	dimension int

	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates an empty in-memory store for the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &MemoryStore{
		dimension:   dimension,
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryStore) Collection(_ context.Context, userID string) (Collection, error) {
	name := CollectionName(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		coll = &memoryCollection{
			dimension: s.dimension,
			byID:      make(map[string]int),
		}
		s.collections[name] = coll
	}
	return coll, nil
}

func (s *MemoryStore) Drop(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, CollectionName(userID))
	return nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memoryEntry struct {
	chunk  Chunk
	vector []float32
	seq    uint64 // insertion order, for deterministic tie-breaking
}

type memoryCollection struct {
	dimension int

	mu      sync.RWMutex
	entries []memoryEntry
	byID    map[string]int // chunk ID -> index into entries
	nextSeq uint64
}

// Upsert validates every vector before taking the write lock, so a reader can
// never observe a partially written batch or a wrong-dimension entry.
func (c *memoryCollection) Upsert(_ context.Context, chunks []*Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != c.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(vec), c.dimension)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, chunk := range chunks {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if idx, ok := c.byID[chunk.ID]; ok {
			// Replacement keeps the original insertion position.
			seq := c.entries[idx].seq
			c.entries[idx] = memoryEntry{chunk: *chunk, vector: vec, seq: seq}
			continue
		}
		c.byID[chunk.ID] = len(c.entries)
		c.entries = append(c.entries, memoryEntry{chunk: *chunk, vector: vec, seq: c.nextSeq})
		c.nextSeq++
	}
	return nil
}

func (c *memoryCollection) DeleteByDocument(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	for _, entry := range c.entries {
		if entry.chunk.DocumentID != documentID {
			kept = append(kept, entry)
		}
	}
	c.entries = kept
	c.byID = make(map[string]int, len(c.entries))
	for i, entry := range c.entries {
		c.byID[entry.chunk.ID] = i
	}
	return nil
}

func (c *memoryCollection) Query(_ context.Context, vector []float32, k int) ([]*ScoredChunk, error) {
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), c.dimension)
	}
	if k <= 0 {
		return []*ScoredChunk{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	type scoredEntry struct {
		score float32
		seq   uint64
		idx   int
	}
	scores := make([]scoredEntry, len(c.entries))
	for i, entry := range c.entries {
		scores[i] = scoredEntry{score: cosine(entry.vector, vector), seq: entry.seq, idx: i}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].seq < scores[j].seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]*ScoredChunk, 0, k)
	for _, s := range scores[:k] {
		chunk := c.entries[s.idx].chunk
		results = append(results, &ScoredChunk{Chunk: &chunk, Score: s.score})
	}
	return results, nil
}

func (c *memoryCollection) Count(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.entries)), nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
