package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

// Segment is one annotated slice of a conversation trace.
type Segment struct {
	ID                int64    `json:"id"`
	Timestamp         string   `json:"timestamp"`
	TimestampEpoch    int64    `json:"timestamp_epoch"`
	TokenStart        int      `json:"token_start"`
	TokenEnd          int      `json:"token_end"`
	SourceFile        string   `json:"source_file"`
	SourceNature      string   `json:"source_nature"`
	SourceOrigin      string   `json:"source_origin"`
	Author            string   `json:"author"`
	EmotionValence    float64  `json:"emotion_valence"`
	EmotionActivation float64  `json:"emotion_activation"`
	Tags              []string `json:"tags"`
	People            []string `json:"people"`
	Projects          []string `json:"projects"`
	Orgs              []string `json:"orgs"`
	Places            []string `json:"places"`
	Summary           string   `json:"summary"`
	GroupID           *int64   `json:"group_id,omitempty"`
	MnemonicWeight    float64  `json:"mnemonic_weight"`
	Confidence        float64  `json:"confidence"`
	CreatedAt         int64    `json:"created_at"`
}

// UnmarshalJSON fills in the default mnemonic weight and confidence when
// the keys are absent from the input. An explicit 0 stays 0; zero is a
// valid value, not a missing one.
func (s *Segment) UnmarshalJSON(data []byte) error {
	type segmentJSON Segment
	aux := struct {
		MnemonicWeight *float64 `json:"mnemonic_weight"`
		Confidence     *float64 `json:"confidence"`
		*segmentJSON
	}{segmentJSON: (*segmentJSON)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.MnemonicWeight = 0.5
	if aux.MnemonicWeight != nil {
		s.MnemonicWeight = *aux.MnemonicWeight
	}
	s.Confidence = 0.5
	if aux.Confidence != nil {
		s.Confidence = *aux.Confidence
	}
	return nil
}

const segmentColumns = `id, timestamp, timestamp_epoch, token_start, token_end,
	source_file, source_nature, source_origin, author,
	emotion_valence, emotion_activation,
	tags, people, projects, orgs, places, summary,
	group_id, mnemonic_weight, confidence, created_at`

// marshalStrings encodes a string slice as a JSON array, never null.
func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func parseStrings(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// InsertSegment persists a segment and synchronizes the full-text index.
// The primary row commits first; an index write failure is journaled for
// repair and logged, the caller still gets a successful insert.
func (db *DB) InsertSegment(seg *Segment) error {
	now := time.Now().UnixMilli()

	var groupID any
	if seg.GroupID != nil {
		groupID = *seg.GroupID
	}

	result, err := db.Exec(`
		INSERT INTO segments (timestamp, timestamp_epoch, token_start, token_end,
			source_file, source_nature, source_origin, author,
			emotion_valence, emotion_activation,
			tags, people, projects, orgs, places, summary,
			group_id, mnemonic_weight, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, seg.Timestamp, seg.TimestampEpoch, seg.TokenStart, seg.TokenEnd,
		seg.SourceFile, seg.SourceNature, seg.SourceOrigin, seg.Author,
		seg.EmotionValence, seg.EmotionActivation,
		marshalStrings(seg.Tags), marshalStrings(seg.People), marshalStrings(seg.Projects),
		marshalStrings(seg.Orgs), marshalStrings(seg.Places), seg.Summary,
		groupID, seg.MnemonicWeight, seg.Confidence, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.NewConflict(fmt.Sprintf(
				"segment already exists for timestamp=%s origin=%s", seg.Timestamp, seg.SourceOrigin))
		}
		return fmt.Errorf("insert segment: %w", err)
	}

	id, _ := result.LastInsertId()
	seg.ID = id
	seg.CreatedAt = now

	if err := db.indexSegment(seg); err != nil {
		db.recordIndexFailure(seg.ID, "index", err)
		log.Printf("store: fts index failed for segment %d, journaled for repair: %v", seg.ID, err)
	}
	return nil
}

// FindByDedupKey returns the segment matching the identity key
// (timestamp, source_origin), or nil.
func (db *DB) FindByDedupKey(timestamp, sourceOrigin string) (*Segment, error) {
	row := db.QueryRow(`SELECT `+segmentColumns+` FROM segments
		WHERE timestamp = ? AND source_origin = ?`, timestamp, sourceOrigin)
	return scanSegmentRow(row)
}

// GetSegment returns a segment by ID, or nil if not found.
func (db *DB) GetSegment(id int64) (*Segment, error) {
	row := db.QueryRow(`SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	return scanSegmentRow(row)
}

// SegmentsByIDs returns segments for the given IDs, in no particular order.
func (db *DB) SegmentsByIDs(ids []int64) ([]Segment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := db.Query(`SELECT `+segmentColumns+` FROM segments WHERE id IN (`+
		strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("segments by ids: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// LastSegmentByOrigin returns the most recent segment from the given origin
// with an ID below beforeID, or nil. Used to anchor chronological edges.
func (db *DB) LastSegmentByOrigin(origin string, beforeID int64) (*Segment, error) {
	row := db.QueryRow(`SELECT `+segmentColumns+` FROM segments
		WHERE source_origin = ? AND id < ?
		ORDER BY timestamp_epoch DESC, id DESC LIMIT 1`, origin, beforeID)
	return scanSegmentRow(row)
}

// RecentSegments returns the latest segments by timestamp, newest first.
func (db *DB) RecentSegments(limit int) ([]Segment, error) {
	rows, err := db.Query(`SELECT `+segmentColumns+` FROM segments
		ORDER BY timestamp_epoch DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent segments: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// SegmentsByGroup returns all segments sharing a group ID.
func (db *DB) SegmentsByGroup(groupID int64) ([]Segment, error) {
	rows, err := db.Query(`SELECT `+segmentColumns+` FROM segments
		WHERE group_id = ? ORDER BY timestamp_epoch, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("segments by group: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// SegmentFilters narrows a segment scan. Zero values mean "no constraint".
type SegmentFilters struct {
	Since   int64 // inclusive epoch lower bound
	Until   int64 // inclusive epoch upper bound
	Author  string
	Origin  string
	GroupID *int64
	// JSON-array membership constraints, every listed value must be present.
	Tags     []string
	People   []string
	Projects []string
}

// FilterSegments scans segments matching the filters, newest first,
// capped at limit rows.
func (db *DB) FilterSegments(f SegmentFilters, limit int) ([]Segment, error) {
	var conds []string
	var args []any

	if f.Since > 0 {
		conds = append(conds, "timestamp_epoch >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		conds = append(conds, "timestamp_epoch <= ?")
		args = append(args, f.Until)
	}
	if f.Author != "" {
		conds = append(conds, "author = ?")
		args = append(args, f.Author)
	}
	if f.Origin != "" {
		conds = append(conds, "source_origin = ?")
		args = append(args, f.Origin)
	}
	if f.GroupID != nil {
		conds = append(conds, "group_id = ?")
		args = append(args, *f.GroupID)
	}
	// JSON columns hold arrays of double-quoted strings; membership is a
	// substring match on the quoted value.
	for _, t := range f.Tags {
		conds = append(conds, "tags LIKE ?")
		args = append(args, jsonMember(t))
	}
	for _, p := range f.People {
		conds = append(conds, "people LIKE ?")
		args = append(args, jsonMember(p))
	}
	for _, p := range f.Projects {
		conds = append(conds, "projects LIKE ?")
		args = append(args, jsonMember(p))
	}

	query := `SELECT ` + segmentColumns + ` FROM segments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp_epoch DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter segments: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

func jsonMember(v string) string {
	b, _ := json.Marshal(v)
	return "%" + string(b) + "%"
}

// UpdateSegmentDerived replaces the derived annotations of a segment
// (tags, entity lists, summary, emotion, group, weight, confidence) and
// re-synchronizes the full-text index. Identity fields never change.
func (db *DB) UpdateSegmentDerived(seg *Segment) error {
	var groupID any
	if seg.GroupID != nil {
		groupID = *seg.GroupID
	}
	result, err := db.Exec(`
		UPDATE segments SET emotion_valence = ?, emotion_activation = ?,
			tags = ?, people = ?, projects = ?, orgs = ?, places = ?, summary = ?,
			group_id = ?, mnemonic_weight = ?, confidence = ?
		WHERE id = ?
	`, seg.EmotionValence, seg.EmotionActivation,
		marshalStrings(seg.Tags), marshalStrings(seg.People), marshalStrings(seg.Projects),
		marshalStrings(seg.Orgs), marshalStrings(seg.Places), seg.Summary,
		groupID, seg.MnemonicWeight, seg.Confidence, seg.ID)
	if err != nil {
		return fmt.Errorf("update segment %d: %w", seg.ID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("segment", seg.ID)
	}

	if err := db.deindexSegment(seg.ID); err != nil {
		db.recordIndexFailure(seg.ID, "index", err)
		log.Printf("store: fts deindex failed for segment %d, journaled: %v", seg.ID, err)
		return nil
	}
	if err := db.indexSegment(seg); err != nil {
		db.recordIndexFailure(seg.ID, "index", err)
		log.Printf("store: fts reindex failed for segment %d, journaled: %v", seg.ID, err)
	}
	return nil
}

// SetMnemonicWeight updates only the mnemonic weight of a segment.
func (db *DB) SetMnemonicWeight(id int64, weight float64) error {
	_, err := db.Exec(`UPDATE segments SET mnemonic_weight = ? WHERE id = ?`, weight, id)
	if err != nil {
		return fmt.Errorf("set mnemonic weight %d: %w", id, err)
	}
	return nil
}

// DeleteSegment removes a segment and everything derived from it:
// edges (cascade), vector (cascade), and its FTS row.
func (db *DB) DeleteSegment(id int64) error {
	result, err := db.Exec(`DELETE FROM segments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete segment %d: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("segment", id)
	}
	if err := db.deindexSegment(id); err != nil {
		db.recordIndexFailure(id, "deindex", err)
		log.Printf("store: fts deindex failed for deleted segment %d, journaled: %v", id, err)
	}
	return nil
}

// CountSegments returns the total number of segments.
func (db *DB) CountSegments() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM segments").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(r rowScanner) (*Segment, error) {
	var s Segment
	var tags, people, projects, orgs, places string
	var groupID sql.NullInt64
	err := r.Scan(&s.ID, &s.Timestamp, &s.TimestampEpoch, &s.TokenStart, &s.TokenEnd,
		&s.SourceFile, &s.SourceNature, &s.SourceOrigin, &s.Author,
		&s.EmotionValence, &s.EmotionActivation,
		&tags, &people, &projects, &orgs, &places, &s.Summary,
		&groupID, &s.MnemonicWeight, &s.Confidence, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Tags = parseStrings(tags)
	s.People = parseStrings(people)
	s.Projects = parseStrings(projects)
	s.Orgs = parseStrings(orgs)
	s.Places = parseStrings(places)
	if groupID.Valid {
		s.GroupID = &groupID.Int64
	}
	return &s, nil
}

func scanSegmentRow(row *sql.Row) (*Segment, error) {
	s, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}
	return s, nil
}

func scanSegments(rows *sql.Rows) ([]Segment, error) {
	var segs []Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, *s)
	}
	return segs, rows.Err()
}
