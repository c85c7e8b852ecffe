// Package ingest orchestrates extraction, chunking, embedding and indexing
// for one uploaded document, end to end, with partial-failure isolation per
// file.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/chunker"
	"github.com/bull/voicekb/internal/extractor"
	"github.com/bull/voicekb/internal/store"
)

// Extractor converts raw file bytes into normalized text.
type Extractor interface {
	Extract(filename string, data []byte) (string, error)
}

// Chunker splits normalized text into overlapping windows.
type Chunker interface {
	Split(text string) []chunker.Chunk
}

// Embedder converts texts into vectors, order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline runs the write path: extract, chunk, embed, upsert. A document
// either indexes completely or leaves no chunks behind.
type Pipeline struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	store     store.Store
	catalog   *catalog.Catalog
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightLock
}

type inflightLock struct {
	mu   sync.Mutex
	refs int
}

// NewPipeline creates an ingestion pipeline with the given components.
func NewPipeline(
	ext Extractor,
	ch Chunker,
	emb Embedder,
	st store.Store,
	cat *catalog.Catalog,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: ext,
		chunker:   ch,
		embedder:  emb,
		store:     st,
		catalog:   cat,
		logger:    logger,
		inflight:  make(map[string]*inflightLock),
	}
}

// Ingest runs the full pipeline for one uploaded file. Ingestion of the same
// (user, filename) pair is serialized; different documents of the same user
// may ingest concurrently. Re-uploading a filename deletes the prior
// document's chunks before re-running, so the collection never accumulates
// stale duplicates.
//
// On failure the returned document is in failed state with the reason
// recorded, and any chunks written for it have been rolled back.
func (p *Pipeline) Ingest(ctx context.Context, userID, filename string, data []byte, mimeType string) (*catalog.Document, error) {
	unlock := p.lock(userID + "/" + filename)
	defer unlock()

	coll, err := p.store.Collection(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	// Replace any prior version of this file.
	if prior, err := p.catalog.FindByFilename(ctx, userID, filename); err == nil {
		if err := coll.DeleteByDocument(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("delete prior document %s: %w", prior.ID, err)
		}
		if err := p.catalog.Delete(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("delete prior record %s: %w", prior.ID, err)
		}
		p.logger.Info("replaced prior document", "user", userID, "filename", filename, "prior_id", prior.ID)
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("lookup prior document: %w", err)
	}

	doc := &catalog.Document{
		ID:       uuid.New().String(),
		UserID:   userID,
		Filename: filename,
		MIMEType: mimeType,
		Status:   catalog.StatusPending,
	}
	if err := p.catalog.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}
	if err := p.catalog.MarkProcessing(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	doc.Status = catalog.StatusProcessing

	count, err := p.process(ctx, coll, doc, data)
	if err != nil {
		p.fail(ctx, coll, doc, err)
		return doc, err
	}

	if err := p.catalog.MarkIndexed(ctx, doc.ID, count); err != nil {
		return doc, fmt.Errorf("mark indexed: %w", err)
	}
	doc.Status = catalog.StatusIndexed
	doc.ChunkCount = count
	p.logger.Info("indexed document", "user", userID, "filename", filename, "chunks", count)
	return doc, nil
}

// process runs extract, chunk, embed, upsert for one document and returns the
// chunk count.
func (p *Pipeline) process(ctx context.Context, coll store.Collection, doc *catalog.Document, data []byte) (int, error) {
	text, err := p.extractor.Extract(doc.Filename, data)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("chunk: %w", extractor.ErrNoText)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	docUUID, err := uuid.Parse(doc.ID)
	if err != nil {
		return 0, fmt.Errorf("parse document id: %w", err)
	}
	entries := make([]*store.Chunk, len(chunks))
	for i, chunk := range chunks {
		entries[i] = &store.Chunk{
			// Deterministic per (document, index) so identical re-ingestion
			// upserts idempotently.
			ID:          uuid.NewSHA1(docUUID, []byte(strconv.Itoa(chunk.Index))).String(),
			DocumentID:  doc.ID,
			Filename:    doc.Filename,
			Index:       chunk.Index,
			StartOffset: chunk.StartOffset,
			EndOffset:   chunk.EndOffset,
			Text:        chunk.Text,
		}
	}

	if err := coll.Upsert(ctx, entries, vectors); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	return len(entries), nil
}

// fail marks a document failed and rolls back any chunks it wrote, so a
// failed document never leaves inconsistent entries in the collection.
func (p *Pipeline) fail(ctx context.Context, coll store.Collection, doc *catalog.Document, cause error) {
	if err := coll.DeleteByDocument(ctx, doc.ID); err != nil {
		p.logger.Warn("rollback failed", "document", doc.ID, "error", err)
	}
	if err := p.catalog.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		p.logger.Warn("mark failed errored", "document", doc.ID, "error", err)
	}
	doc.Status = catalog.StatusFailed
	doc.Reason = cause.Error()
	p.logger.Warn("ingestion failed", "user", doc.UserID, "filename", doc.Filename, "error", cause)
}

// lock serializes ingestion per (user, filename) key.
func (p *Pipeline) lock(key string) func() {
	p.mu.Lock()
	entry, ok := p.inflight[key]
	if !ok {
		entry = &inflightLock{}
		p.inflight[key] = entry
	}
	entry.refs++
	p.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		p.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(p.inflight, key)
		}
		p.mu.Unlock()
	}
}
