// Package store provides per-user vector collections. A Collection handle is
// scoped to one user at construction time; there is no shared index filtered
// by a user field.
package store

import "context"

// Collection is a user-scoped handle over one collection namespace.
type Collection interface {
	// Upsert writes chunks with their vectors, replacing any existing entry
	// with the same chunk ID. chunks and vectors correspond by position.
	Upsert(ctx context.Context, chunks []*Chunk, vectors [][]float32) error

	// DeleteByDocument removes every chunk belonging to the document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Query returns up to k chunks ordered by descending similarity to the
	// vector. It returns fewer than k when the collection holds fewer entries,
	// and an empty slice (not an error) for an empty collection.
	Query(ctx context.Context, vector []float32, k int) ([]*ScoredChunk, error)

	// Count reports the number of chunks currently indexed.
	Count(ctx context.Context) (uint64, error)
}

// Store creates and drops user-scoped collections.
type Store interface {
	// Collection returns the handle for a user, creating the underlying
	// collection if it does not exist yet.
	Collection(ctx context.Context, userID string) (Collection, error)

	// Drop removes a user's collection entirely. The collection is recreated
	// lazily on the next Collection call.
	Drop(ctx context.Context, userID string) error

	// Health reports whether the backing index is reachable.
	Health(ctx context.Context) error

	Close() error
}
