package store

// Chunk is the unit of indexing and retrieval: one overlapping window of a
// document's extracted text, together with enough metadata to cite it.
type Chunk struct {
	ID          string // deterministic UUID derived from (document ID, index)
	DocumentID  string
	Filename    string
	Index       int // position within the document (0, 1, 2...)
	StartOffset int // character offset into the normalized document text
	EndOffset   int
	Text        string
}

// ScoredChunk pairs a chunk with its similarity score for a query.
type ScoredChunk struct {
	Chunk *Chunk
	Score float32
}

// DefaultDimension is the vector size for text-embedding-3-small.
const DefaultDimension = 1536

// CollectionName returns the collection namespace for a user. Every store
// operation goes through a handle bound to exactly one such namespace, so no
// cross-user read or write path exists.
func CollectionName(userID string) string {
	return "kb_user_" + userID
}
