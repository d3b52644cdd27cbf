package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SegmentVector is an opaque embedding blob attached to a segment. The store
// never interprets the bytes; similarity math lives with whoever produced
// the embedding.
type SegmentVector struct {
	SegmentID  int64
	Embedding  []byte
	Model      string
	Dimensions int
	CreatedAt  int64
}

// SaveVector stores or replaces a segment's embedding.
func (db *DB) SaveVector(segmentID int64, embedding []byte, model string, dimensions int) error {
	_, err := db.Exec(`
		INSERT INTO segment_vectors (segment_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (segment_id)
		DO UPDATE SET embedding = excluded.embedding, model = excluded.model,
			dimensions = excluded.dimensions, created_at = excluded.created_at
	`, segmentID, embedding, model, dimensions, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save vector for segment %d: %w", segmentID, err)
	}
	return nil
}

// GetVector returns a segment's embedding, or nil if none is stored.
func (db *DB) GetVector(segmentID int64) (*SegmentVector, error) {
	var v SegmentVector
	err := db.QueryRow(`
		SELECT segment_id, embedding, model, dimensions, created_at
		FROM segment_vectors WHERE segment_id = ?
	`, segmentID).Scan(&v.SegmentID, &v.Embedding, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector for segment %d: %w", segmentID, err)
	}
	return &v, nil
}

// DeleteVector removes a segment's embedding if present.
func (db *DB) DeleteVector(segmentID int64) error {
	_, err := db.Exec(`DELETE FROM segment_vectors WHERE segment_id = ?`, segmentID)
	if err != nil {
		return fmt.Errorf("delete vector for segment %d: %w", segmentID, err)
	}
	return nil
}

// CountVectors returns the number of stored embeddings.
func (db *DB) CountVectors() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM segment_vectors").Scan(&count)
	return count, err
}
