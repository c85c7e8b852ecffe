// Package retrieval is the read path: embed a query, run a top-k similarity
// search on the user's collection and format each hit with citation metadata.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/voicekb/internal/store"
)

// ErrUnavailable indicates that embedding or the vector store failed.
// Distinct from an empty result, which is a successful lookup that found
// nothing.
var ErrUnavailable = errors.New("retrieval unavailable")

// Embedder converts query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one retrieved excerpt with enough citation metadata for the
// conversational layer to reference it.
type Result struct {
	Excerpt     string  `json:"excerpt"`
	Filename    string  `json:"filename"`
	DocumentID  string  `json:"document_id"`
	ChunkIndex  int     `json:"chunk_index"`
	StartOffset int     `json:"start_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float32 `json:"score"`
}

// Config bounds the number of results. Zero values fall back to defaults.
type Config struct {
	DefaultK int
	MinK     int
	MaxK     int
}

// Service embeds queries and searches per-user collections.
type Service struct {
	embedder Embedder
	store    store.Store
	cfg      Config
	logger   *slog.Logger
}

// NewService creates a retrieval service.
func NewService(embedder Embedder, st store.Store, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 3
	}
	if cfg.MinK <= 0 {
		cfg.MinK = 1
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, store: st, cfg: cfg, logger: logger}
}

// Search returns the top-k chunks of the user's collection for the query.
// k <= 0 selects the default; out-of-range values are clamped. An empty
// collection yields an empty slice, not an error; infrastructure faults
// surface as ErrUnavailable.
func (s *Service) Search(ctx context.Context, userID, query string, k int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query text is missing")
	}

	if k <= 0 {
		k = s.cfg.DefaultK
	}
	k = max(s.cfg.MinK, min(s.cfg.MaxK, k))

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	coll, err := s.store.Collection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %v", ErrUnavailable, err)
	}

	hits, err := coll.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: query collection: %v", ErrUnavailable, err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Excerpt:     hit.Chunk.Text,
			Filename:    hit.Chunk.Filename,
			DocumentID:  hit.Chunk.DocumentID,
			ChunkIndex:  hit.Chunk.Index,
			StartOffset: hit.Chunk.StartOffset,
			EndOffset:   hit.Chunk.EndOffset,
			Score:       hit.Score,
		})
	}
	s.logger.Debug("search complete", "user", userID, "k", k, "hits", len(results))
	return results, nil
}
