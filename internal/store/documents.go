package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

// Document is an ingested reference source (a note, an article, a file)
// split into chunks for retrieval.
type Document struct {
	ID        string `json:"id"`
	SourceURI string `json:"source_uri"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

// Chunk is one retrievable slice of a document.
type Chunk struct {
	ID         int64    `json:"id"`
	DocumentID string   `json:"document_id"`
	ChunkIndex int      `json:"chunk_index"`
	Text       string   `json:"text"`
	TokenCount int      `json:"token_count"`
	Tags       []string `json:"tags,omitempty"`
}

// ChunkMatch is a full-text hit against the chunk corpus.
type ChunkMatch struct {
	Chunk
	DocumentTitle string `json:"document_title"`
	SourceURI     string `json:"source_uri"`
}

// CreateDocument inserts a document and its chunks in one transaction,
// indexing every chunk for full-text search.
func (db *DB) CreateDocument(doc *Document, chunks []Chunk) error {
	doc.SourceURI = strings.TrimSpace(doc.SourceURI)
	if doc.SourceURI == "" {
		return apperrors.NewValidation("document source_uri must not be empty")
	}
	if doc.ID == "" {
		doc.ID = ulid.Make().String()
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO documents (id, source_uri, title, created_at) VALUES (?, ?, ?, ?)
	`, doc.ID, doc.SourceURI, doc.Title, now); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.NewConflict(fmt.Sprintf("document already exists for %s", doc.SourceURI))
		}
		return fmt.Errorf("insert document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		c.DocumentID = doc.ID
		c.ChunkIndex = i
		result, err := tx.Exec(`
			INSERT INTO chunks (document_id, chunk_index, text, token_count, tags)
			VALUES (?, ?, ?, ?, ?)
		`, c.DocumentID, c.ChunkIndex, c.Text, c.TokenCount, marshalStrings(c.Tags))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
		id, _ := result.LastInsertId()
		c.ID = id

		if _, err := tx.Exec(`
			INSERT INTO chunk_fts (rowid, text, tags) VALUES (?, ?, ?)
		`, c.ID, c.Text, strings.Join(c.Tags, " ")); err != nil {
			return fmt.Errorf("index chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	doc.CreatedAt = now
	return nil
}

// GetDocument returns a document and its chunks in order, or nil.
func (db *DB) GetDocument(id string) (*Document, []Chunk, error) {
	var doc Document
	err := db.QueryRow(`
		SELECT id, source_uri, title, created_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.SourceURI, &doc.Title, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get document: %w", err)
	}

	rows, err := db.Query(`
		SELECT id, document_id, chunk_index, text, token_count, tags
		FROM chunks WHERE document_id = ? ORDER BY chunk_index
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get document chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var tags string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.TokenCount, &tags); err != nil {
			return nil, nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Tags = parseStrings(tags)
		chunks = append(chunks, c)
	}
	return &doc, chunks, rows.Err()
}

// ListDocuments returns documents, newest first.
func (db *DB) ListDocuments(limit int) ([]Document, error) {
	rows, err := db.Query(`
		SELECT id, source_uri, title, created_at FROM documents
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SourceURI, &d.Title, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchChunks runs a full-text query over the document corpus, best match
// first, with the parent document's title and URI attached.
func (db *DB) SearchChunks(query string, limit int) ([]ChunkMatch, error) {
	expr := buildMatchExpr(query)
	if expr == "" {
		return nil, nil
	}
	rows, err := db.Query(`
		SELECT c.id, c.document_id, c.chunk_index, c.text, c.token_count, c.tags,
			d.title, d.source_uri
		FROM chunk_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunk_fts MATCH ?
		ORDER BY bm25(chunk_fts) ASC, c.id DESC LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	defer rows.Close()

	var out []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var tags string
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.ChunkIndex, &m.Text, &m.TokenCount, &tags,
			&m.DocumentTitle, &m.SourceURI); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		m.Tags = parseStrings(tags)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document, its chunks, and their FTS rows.
func (db *DB) DeleteDocument(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM chunk_fts WHERE rowid IN (SELECT id FROM chunks WHERE document_id = ?)
	`, id); err != nil {
		return fmt.Errorf("deindex document chunks: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("document", id)
	}
	return tx.Commit()
}
