package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

// Edge types derived by the graph builder.
const (
	EdgeChronological = "chronological"
	EdgeSameSession   = "same_session"
	EdgeSemantic      = "semantic"
	EdgeSameGroup     = "same_group"
	EdgeEmotional     = "emotional"
)

// Edge is a typed, weighted link between two segments.
type Edge struct {
	SourceID  int64   `json:"source_id"`
	TargetID  int64   `json:"target_id"`
	Type      string  `json:"type"`
	Weight    float64 `json:"weight"`
	Metadata  string  `json:"metadata,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// UpsertEdge inserts an edge or, if one already exists for the same
// (source, target, type), replaces its weight and metadata. Referencing a
// missing segment is an integrity error, never silently dropped.
func (db *DB) UpsertEdge(e *Edge) error {
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO edges (source_id, target_id, type, weight, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, target_id, type)
		DO UPDATE SET weight = excluded.weight, metadata = excluded.metadata
	`, e.SourceID, e.TargetID, e.Type, e.Weight, e.Metadata, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return apperrors.NewIntegrity(fmt.Sprintf(
				"edge %d->%d (%s) references a missing segment", e.SourceID, e.TargetID, e.Type))
		}
		return fmt.Errorf("upsert edge: %w", err)
	}
	e.CreatedAt = now
	return nil
}

// EdgesFrom returns outgoing edges of a segment, heaviest first.
// An empty type matches all edge types.
func (db *DB) EdgesFrom(segmentID int64, edgeType string) ([]Edge, error) {
	query := `SELECT source_id, target_id, type, weight, metadata, created_at
		FROM edges WHERE source_id = ?`
	args := []any{segmentID}
	if edgeType != "" {
		query += " AND type = ?"
		args = append(args, edgeType)
	}
	query += " ORDER BY weight DESC, target_id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("edges from %d: %w", segmentID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// Neighbors returns every edge touching a segment in either direction,
// heaviest first.
func (db *DB) Neighbors(segmentID int64) ([]Edge, error) {
	rows, err := db.Query(`
		SELECT source_id, target_id, type, weight, metadata, created_at
		FROM edges WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC, source_id, target_id
	`, segmentID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %d: %w", segmentID, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the total edge count, optionally for one type.
func (db *DB) CountEdges(edgeType string) (int, error) {
	var count int
	var err error
	if edgeType == "" {
		err = db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&count)
	} else {
		err = db.QueryRow("SELECT COUNT(*) FROM edges WHERE type = ?", edgeType).Scan(&count)
	}
	return count, err
}

func scanEdges(rows *sql.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type, &e.Weight, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
