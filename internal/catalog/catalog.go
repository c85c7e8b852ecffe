// Package catalog persists document records and their ingestion status so
// citations and file listings survive process restarts.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound indicates no document matched the lookup.
var ErrNotFound = errors.New("document not found")

// Status is the ingestion lifecycle state of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// Document is one uploaded file owned by a user.
type Document struct {
	ID         string
	UserID     string
	Filename   string
	MIMEType   string
	Status     Status
	Reason     string // failure reason, empty unless Status is failed
	ChunkCount int
	UploadedAt time.Time
	IndexedAt  time.Time // zero unless Status is indexed
}

// Catalog is a SQLite-backed document store.
type Catalog struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	filename    TEXT NOT NULL,
	mime_type   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	uploaded_at TEXT NOT NULL,
	indexed_at  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_documents_user_filename ON documents(user_id, filename);
`

// Open opens (or creates) the catalog database at path. Use ":memory:" for
// an ephemeral catalog in tests.
func Open(path string) (*Catalog, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Create inserts a new document record in pending state.
func (c *Catalog) Create(ctx context.Context, doc *Document) error {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, filename, mime_type, status, reason, chunk_count, uploaded_at, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Filename, doc.MIMEType, string(doc.Status), doc.Reason,
		doc.ChunkCount, formatTime(doc.UploadedAt), formatTime(doc.IndexedAt))
	if err != nil {
		return fmt.Errorf("creating document %s: %w", doc.ID, err)
	}
	return nil
}

// MarkProcessing transitions a document to processing.
func (c *Catalog) MarkProcessing(ctx context.Context, id string) error {
	return c.setStatus(ctx, id, StatusProcessing, "", 0, time.Time{})
}

// MarkIndexed transitions a document to indexed with its final chunk count.
func (c *Catalog) MarkIndexed(ctx context.Context, id string, chunkCount int) error {
	return c.setStatus(ctx, id, StatusIndexed, "", chunkCount, time.Now().UTC())
}

// MarkFailed transitions a document to failed with the recorded reason.
func (c *Catalog) MarkFailed(ctx context.Context, id string, reason string) error {
	return c.setStatus(ctx, id, StatusFailed, reason, 0, time.Time{})
}

func (c *Catalog) setStatus(ctx context.Context, id string, status Status, reason string, chunkCount int, indexedAt time.Time) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, reason = ?, chunk_count = ?, indexed_at = ? WHERE id = ?`,
		string(status), reason, chunkCount, formatTime(indexedAt), id)
	if err != nil {
		return fmt.Errorf("updating document %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a document by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Document, error) {
	row := c.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanDocument(row)
}

// FindByFilename returns the user's document with the given filename, or
// ErrNotFound. Re-uploading a filename replaces the prior document, so a
// (user, filename) pair identifies at most one live record.
func (c *Catalog) FindByFilename(ctx context.Context, userID, filename string) (*Document, error) {
	row := c.db.QueryRowContext(ctx,
		selectColumns+` WHERE user_id = ? AND filename = ? ORDER BY uploaded_at DESC LIMIT 1`,
		userID, filename)
	return scanDocument(row)
}

// ListByUser returns all of a user's documents ordered by filename.
func (c *Catalog) ListByUser(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := c.db.QueryContext(ctx, selectColumns+` WHERE user_id = ? ORDER BY filename`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document record.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// DeleteByUser removes all of a user's document records.
func (c *Catalog) DeleteByUser(ctx context.Context, userID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting documents for user %s: %w", userID, err)
	}
	return nil
}

const selectColumns = `SELECT id, user_id, filename, mime_type, status, reason, chunk_count, uploaded_at, indexed_at FROM documents`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var status, uploadedAt, indexedAt string
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.MIMEType, &status,
		&doc.Reason, &doc.ChunkCount, &uploadedAt, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Status = Status(status)
	doc.UploadedAt = parseTime(uploadedAt)
	doc.IndexedAt = parseTime(indexedAt)
	return &doc, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
