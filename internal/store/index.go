package store

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// The segment_fts virtual table is maintained explicitly after each primary
// write rather than by triggers. A failed index write is journaled in
// index_repair so RepairIndex can reconcile later.

func (db *DB) indexSegment(seg *Segment) error {
	_, err := db.Exec(`
		INSERT INTO segment_fts (rowid, summary, tags, people, projects, orgs, places)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, seg.ID, seg.Summary,
		strings.Join(seg.Tags, " "), strings.Join(seg.People, " "),
		strings.Join(seg.Projects, " "), strings.Join(seg.Orgs, " "),
		strings.Join(seg.Places, " "))
	if err != nil {
		return fmt.Errorf("index segment %d: %w", seg.ID, err)
	}
	return nil
}

func (db *DB) deindexSegment(id int64) error {
	_, err := db.Exec(`DELETE FROM segment_fts WHERE rowid = ?`, id)
	if err != nil {
		return fmt.Errorf("deindex segment %d: %w", id, err)
	}
	return nil
}

func (db *DB) recordIndexFailure(segmentID int64, op string, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	_, err := db.Exec(`
		INSERT INTO index_repair (segment_id, op, reason, created_at)
		VALUES (?, ?, ?, ?)
	`, segmentID, op, reason, time.Now().UnixMilli())
	if err != nil {
		// Nothing left to do but leave a trace for the operator.
		log.Printf("store: could not journal index failure for segment %d: %v", segmentID, err)
	}
}

// buildMatchExpr turns free text into a safe FTS5 MATCH expression:
// each token is double-quoted so user punctuation cannot break the query.
func buildMatchExpr(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// IndexMatch is one full-text hit, best match first.
type IndexMatch struct {
	SegmentID int64
	Rank      int // 0 is the best match
}

// SearchIndex runs a full-text query over segment annotations and returns
// matches ordered best first.
func (db *DB) SearchIndex(query string, limit int) ([]IndexMatch, error) {
	expr := buildMatchExpr(query)
	if expr == "" {
		return nil, nil
	}
	rows, err := db.Query(`
		SELECT rowid FROM segment_fts WHERE segment_fts MATCH ?
		ORDER BY bm25(segment_fts) ASC, rowid DESC LIMIT ?
	`, expr, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var matches []IndexMatch
	rank := 0
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fts match: %w", err)
		}
		matches = append(matches, IndexMatch{SegmentID: id, Rank: rank})
		rank++
	}
	return matches, rows.Err()
}

// RepairIndex drains the repair journal, re-deriving the FTS row for each
// journaled segment. Returns the number of entries reconciled.
func (db *DB) RepairIndex() (int, error) {
	rows, err := db.Query(`SELECT id, segment_id, op FROM index_repair ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("read index_repair: %w", err)
	}

	type entry struct {
		id        int64
		segmentID int64
		op        string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.segmentID, &e.op); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan index_repair: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	repaired := 0
	for _, e := range entries {
		// Re-derive from the current primary row. A segment deleted since the
		// journal entry only needs its FTS row cleared.
		if err := db.deindexSegment(e.segmentID); err != nil {
			return repaired, err
		}
		if e.op == "index" {
			seg, err := db.GetSegment(e.segmentID)
			if err != nil {
				return repaired, err
			}
			if seg != nil {
				if err := db.indexSegment(seg); err != nil {
					return repaired, err
				}
			}
		}
		if _, err := db.Exec(`DELETE FROM index_repair WHERE id = ?`, e.id); err != nil {
			return repaired, fmt.Errorf("clear index_repair %d: %w", e.id, err)
		}
		repaired++
	}
	return repaired, nil
}

// PendingRepairs returns the number of journaled index inconsistencies.
func (db *DB) PendingRepairs() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM index_repair").Scan(&count)
	return count, err
}

// VerifyIndex cross-checks the FTS table against segments and returns the
// IDs of segments missing from the index plus orphan FTS rowids.
func (db *DB) VerifyIndex() (missing []int64, orphans []int64, err error) {
	rows, err := db.Query(`
		SELECT s.id FROM segments s
		LEFT JOIN segment_fts f ON f.rowid = s.id
		WHERE f.rowid IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("verify index (missing): %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, err
		}
		missing = append(missing, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.Query(`
		SELECT f.rowid FROM segment_fts f
		LEFT JOIN segments s ON s.id = f.rowid
		WHERE s.id IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("verify index (orphans): %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, nil, err
		}
		orphans = append(orphans, id)
	}
	return missing, orphans, rows.Err()
}
