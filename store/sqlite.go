package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/docgraph"
)

// SQLiteCatalog tracks document ingestion state in a SQLite database. A
// file path gives durable state; ":memory:" works for tests.
type SQLiteCatalog struct {
	db        *sql.DB
	tableName string
}

// SQLiteOptions configures the catalog.
type SQLiteOptions struct {
	Path      string
	TableName string // default "docgraph_documents"
}

var _ docgraph.Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens (or creates) the catalog database.
func NewSQLiteCatalog(opts SQLiteOptions) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "docgraph_documents"
	}

	c := &SQLiteCatalog{db: db, tableName: tableName}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			ingested_at TIMESTAMP NOT NULL,
			chunk_ids TEXT NOT NULL,
			status TEXT NOT NULL,
			fail_reason TEXT
		)
	`, c.tableName)

	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put stores or replaces a document record.
func (c *SQLiteCatalog) Put(ctx context.Context, doc docgraph.Document) error {
	chunkIDs, err := json.Marshal(doc.ChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk ids: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, source_path, ingested_at, chunk_ids, status, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_path = excluded.source_path,
			ingested_at = excluded.ingested_at,
			chunk_ids = excluded.chunk_ids,
			status = excluded.status,
			fail_reason = excluded.fail_reason
	`, c.tableName)

	_, err = c.db.ExecContext(ctx, query,
		doc.ID, doc.SourcePath, doc.IngestedAt.UTC(), chunkIDs, string(doc.Status), doc.FailReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document record by id.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (docgraph.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, source_path, ingested_at, chunk_ids, status, fail_reason
		FROM %s WHERE id = ?
	`, c.tableName)

	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return docgraph.Document{}, fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return docgraph.Document{}, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return doc, nil
}

// List returns all document records ordered by id.
func (c *SQLiteCatalog) List(ctx context.Context) ([]docgraph.Document, error) {
	query := fmt.Sprintf(`
		SELECT id, source_path, ingested_at, chunk_ids, status, fail_reason
		FROM %s ORDER BY id
	`, c.tableName)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []docgraph.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document record. Deleting an unknown id is a no-op.
func (c *SQLiteCatalog) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, c.tableName)
	if _, err := c.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (docgraph.Document, error) {
	var doc docgraph.Document
	var ingestedAt time.Time
	var chunkIDs []byte
	var status string
	var failReason sql.NullString

	if err := row.Scan(&doc.ID, &doc.SourcePath, &ingestedAt, &chunkIDs, &status, &failReason); err != nil {
		return docgraph.Document{}, err
	}

	doc.IngestedAt = ingestedAt
	doc.Status = docgraph.DocumentStatus(status)
	doc.FailReason = failReason.String
	if err := json.Unmarshal(chunkIDs, &doc.ChunkIDs); err != nil {
		return docgraph.Document{}, err
	}
	return doc, nil
}
