package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

// Pillar is a durable fact ranked by importance. The statement is
// write-once; only importance can change after creation.
type Pillar struct {
	ID         int64  `json:"id"`
	Statement  string `json:"statement"`
	Category   string `json:"category,omitempty"`
	Importance int    `json:"importance"`
	SegmentID  *int64 `json:"segment_id,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// CreatePillar inserts a pillar. Importance must be in [0, 3].
func (db *DB) CreatePillar(p *Pillar) error {
	p.Statement = strings.TrimSpace(p.Statement)
	if p.Statement == "" {
		return apperrors.NewValidation("pillar statement must not be empty")
	}
	if p.Importance < 0 || p.Importance > 3 {
		return apperrors.NewValidationf("pillar importance %d out of range [0, 3]", p.Importance)
	}

	now := time.Now().UnixMilli()
	var segmentID any
	if p.SegmentID != nil {
		segmentID = *p.SegmentID
	}
	result, err := db.Exec(`
		INSERT INTO pillars (statement, category, importance, segment_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Statement, p.Category, p.Importance, segmentID, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return apperrors.NewIntegrity(fmt.Sprintf("pillar references missing segment %v", segmentID))
		}
		return fmt.Errorf("create pillar: %w", err)
	}
	id, _ := result.LastInsertId()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPillar returns a pillar by ID, or nil.
func (db *DB) GetPillar(id int64) (*Pillar, error) {
	row := db.QueryRow(`
		SELECT id, statement, category, importance, segment_id, created_at, updated_at
		FROM pillars WHERE id = ?`, id)
	p, err := scanPillar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pillar: %w", err)
	}
	return p, nil
}

// ListPillars returns pillars ordered by importance descending then newest
// first. Empty category means "any"; minImportance filters the floor.
func (db *DB) ListPillars(category string, minImportance, limit int) ([]Pillar, error) {
	query := `SELECT id, statement, category, importance, segment_id, created_at, updated_at
		FROM pillars WHERE importance >= ?`
	args := []any{minImportance}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY importance DESC, created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pillars: %w", err)
	}
	defer rows.Close()

	var out []Pillar
	for rows.Next() {
		p, err := scanPillar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pillar: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePillarImportance changes a pillar's importance. The statement is
// immutable after creation.
func (db *DB) UpdatePillarImportance(id int64, importance int) error {
	if importance < 0 || importance > 3 {
		return apperrors.NewValidationf("pillar importance %d out of range [0, 3]", importance)
	}
	result, err := db.Exec(`
		UPDATE pillars SET importance = ?, updated_at = ? WHERE id = ?
	`, importance, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update pillar importance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("pillar", id)
	}
	return nil
}

func scanPillar(r rowScanner) (*Pillar, error) {
	var p Pillar
	var segmentID sql.NullInt64
	err := r.Scan(&p.ID, &p.Statement, &p.Category, &p.Importance, &segmentID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if segmentID.Valid {
		p.SegmentID = &segmentID.Int64
	}
	return &p, nil
}
