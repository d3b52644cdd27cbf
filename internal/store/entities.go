package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

// Entity kinds.
const (
	KindPerson  = "person"
	KindProject = "project"
	KindOrg     = "org"
)

// Candidate statuses.
const (
	CandidatePending  = "pending"
	CandidateAccepted = "accepted"
	CandidateRejected = "rejected"
)

// Entity is a canonical named thing: a person, a project, or an organization.
type Entity struct {
	ID        int64    `json:"id"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	NameNorm  string   `json:"-"`
	Variants  []string `json:"variants"`
	Domain    string   `json:"domain,omitempty"`
	Active    bool     `json:"active"`
	ParentID  *int64   `json:"parent_id,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

// Candidate is a detected name awaiting human resolution.
type Candidate struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	DetectedName string `json:"detected_name"`
	NameNorm     string `json:"-"`
	Context      string `json:"context,omitempty"`
	SegmentID    *int64 `json:"segment_id,omitempty"`
	Status       string `json:"status"`
	EntityID     *int64 `json:"entity_id,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	ResolvedAt   *int64 `json:"resolved_at,omitempty"`
}

// NormalizeName lowercases, trims, and collapses internal whitespace.
// Accents are preserved: "Hélène" and "Helene" stay distinct names.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// CreateEntity inserts a canonical entity.
func (db *DB) CreateEntity(e *Entity) error {
	e.NameNorm = NormalizeName(e.Name)
	if e.NameNorm == "" {
		return apperrors.NewValidation("entity name must not be empty")
	}
	now := time.Now().UnixMilli()
	var parentID any
	if e.ParentID != nil {
		parentID = *e.ParentID
	}
	active := 0
	if e.Active {
		active = 1
	}
	result, err := db.Exec(`
		INSERT INTO entities (kind, name, name_norm, variants, domain, active, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Kind, e.Name, e.NameNorm, marshalStrings(e.Variants), e.Domain, active, parentID, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.NewConflict(fmt.Sprintf("%s %q already exists", e.Kind, e.Name))
		}
		return fmt.Errorf("create entity: %w", err)
	}
	id, _ := result.LastInsertId()
	e.ID = id
	e.CreatedAt = now
	return nil
}

// GetEntity returns an entity by ID, or nil.
func (db *DB) GetEntity(id int64) (*Entity, error) {
	row := db.QueryRow(`
		SELECT id, kind, name, name_norm, variants, domain, active, parent_id, created_at
		FROM entities WHERE id = ?`, id)
	return scanEntityRow(row)
}

// ResolveEntity matches a detected name against canonical names and variants
// of the given kind, case-insensitively. Returns nil when nothing matches.
func (db *DB) ResolveEntity(kind, name string) (*Entity, error) {
	norm := NormalizeName(name)
	if norm == "" {
		return nil, nil
	}

	row := db.QueryRow(`
		SELECT id, kind, name, name_norm, variants, domain, active, parent_id, created_at
		FROM entities WHERE kind = ? AND name_norm = ?`, kind, norm)
	e, err := scanEntityRow(row)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}

	// Variant match requires scanning; variants are small JSON lists.
	all, err := db.ListEntities(kind, false)
	if err != nil {
		return nil, err
	}
	for i := range all {
		for _, v := range all[i].Variants {
			if NormalizeName(v) == norm {
				return &all[i], nil
			}
		}
	}
	return nil, nil
}

// AddVariant appends an alternate spelling to an entity.
func (db *DB) AddVariant(entityID int64, variant string) error {
	e, err := db.GetEntity(entityID)
	if err != nil {
		return err
	}
	if e == nil {
		return apperrors.NewNotFound("entity", entityID)
	}
	norm := NormalizeName(variant)
	if norm == "" || norm == e.NameNorm {
		return nil
	}
	for _, v := range e.Variants {
		if NormalizeName(v) == norm {
			return nil
		}
	}
	e.Variants = append(e.Variants, variant)
	_, err = db.Exec(`UPDATE entities SET variants = ? WHERE id = ?`,
		marshalStrings(e.Variants), entityID)
	if err != nil {
		return fmt.Errorf("add variant: %w", err)
	}
	return nil
}

// SetEntityActive toggles whether an entity is active.
func (db *DB) SetEntityActive(entityID int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	result, err := db.Exec(`UPDATE entities SET active = ? WHERE id = ?`, v, entityID)
	if err != nil {
		return fmt.Errorf("set entity active: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("entity", entityID)
	}
	return nil
}

// ListEntities returns entities of a kind, ordered by name.
func (db *DB) ListEntities(kind string, activeOnly bool) ([]Entity, error) {
	query := `SELECT id, kind, name, name_norm, variants, domain, active, parent_id, created_at
		FROM entities WHERE kind = ?`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY name_norm"

	rows, err := db.Query(query, kind)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// SetProjectParent attaches a project under a parent project. Self-reference
// and cycles are rejected.
func (db *DB) SetProjectParent(projectID, parentID int64) error {
	if projectID == parentID {
		return apperrors.NewValidation("project cannot be its own parent")
	}

	// Walk up from the proposed parent; hitting projectID would form a cycle.
	// The walk is bounded so a corrupted chain cannot loop forever.
	cur := parentID
	for i := 0; i < 64; i++ {
		e, err := db.GetEntity(cur)
		if err != nil {
			return err
		}
		if e == nil {
			return apperrors.NewNotFound("entity", cur)
		}
		if e.Kind != KindProject {
			return apperrors.NewValidationf("parent %d is not a project", parentID)
		}
		if e.ParentID == nil {
			break
		}
		if *e.ParentID == projectID {
			return apperrors.NewValidation("parent assignment would create a cycle")
		}
		cur = *e.ParentID
	}

	result, err := db.Exec(`UPDATE entities SET parent_id = ? WHERE id = ? AND kind = ?`,
		parentID, projectID, KindProject)
	if err != nil {
		return fmt.Errorf("set project parent: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFound("project", projectID)
	}
	return nil
}

// ProjectTree returns a project and its descendants, parent first.
// Traversal depth is bounded.
func (db *DB) ProjectTree(rootID int64) ([]Entity, error) {
	root, err := db.GetEntity(rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, apperrors.NewNotFound("project", rootID)
	}

	out := []Entity{*root}
	frontier := []int64{rootID}
	for depth := 0; depth < 16 && len(frontier) > 0; depth++ {
		ph := make([]string, len(frontier))
		args := make([]any, len(frontier))
		for i, id := range frontier {
			ph[i] = "?"
			args[i] = id
		}
		rows, err := db.Query(`
			SELECT id, kind, name, name_norm, variants, domain, active, parent_id, created_at
			FROM entities WHERE parent_id IN (`+strings.Join(ph, ",")+`)
			ORDER BY name_norm`, args...)
		if err != nil {
			return nil, fmt.Errorf("project tree: %w", err)
		}
		var next []int64
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, *e)
			next = append(next, e.ID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		frontier = next
	}
	return out, nil
}

// CreateCandidate stages a detected name for resolution. If a pending
// candidate with the same kind and normalized name already exists this is a
// no-op; a previously rejected name stages a fresh pending candidate.
func (db *DB) CreateCandidate(c *Candidate) error {
	c.NameNorm = NormalizeName(c.DetectedName)
	if c.NameNorm == "" {
		return apperrors.NewValidation("candidate name must not be empty")
	}

	var existing int64
	err := db.QueryRow(`
		SELECT id FROM candidates
		WHERE kind = ? AND name_norm = ? AND status = 'pending'
	`, c.Kind, c.NameNorm).Scan(&existing)
	if err == nil {
		c.ID = existing
		c.Status = CandidatePending
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check pending candidate: %w", err)
	}

	now := time.Now().UnixMilli()
	var segmentID any
	if c.SegmentID != nil {
		segmentID = *c.SegmentID
	}
	result, err := db.Exec(`
		INSERT INTO candidates (kind, detected_name, name_norm, context, segment_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
	`, c.Kind, c.DetectedName, c.NameNorm, c.Context, segmentID, now)
	if err != nil {
		return fmt.Errorf("create candidate: %w", err)
	}
	id, _ := result.LastInsertId()
	c.ID = id
	c.Status = CandidatePending
	c.CreatedAt = now
	return nil
}

// GetCandidate returns a candidate by ID, or nil.
func (db *DB) GetCandidate(id int64) (*Candidate, error) {
	row := db.QueryRow(`
		SELECT id, kind, detected_name, name_norm, context, segment_id, status, entity_id, created_at, resolved_at
		FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// ListCandidates returns candidates, newest first. Empty status or kind
// means "any".
func (db *DB) ListCandidates(status, kind string) ([]Candidate, error) {
	query := `SELECT id, kind, detected_name, name_norm, context, segment_id, status, entity_id, created_at, resolved_at
		FROM candidates`
	var conds []string
	var args []any
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AcceptCandidate resolves a pending candidate. When mergeInto is nonzero the
// detected name becomes a variant of that entity; otherwise a new canonical
// entity is created (or the name is linked to an existing exact match).
// Returns the entity the candidate resolved to.
func (db *DB) AcceptCandidate(candidateID int64, mergeInto int64) (*Entity, error) {
	c, err := db.GetCandidate(candidateID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.NewNotFound("candidate", candidateID)
	}
	if c.Status != CandidatePending {
		return nil, apperrors.NewConflict(fmt.Sprintf("candidate %d already %s", candidateID, c.Status))
	}

	var entity *Entity
	if mergeInto != 0 {
		entity, err = db.GetEntity(mergeInto)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			return nil, apperrors.NewNotFound("entity", mergeInto)
		}
		if entity.Kind != c.Kind {
			return nil, apperrors.NewValidationf("cannot merge %s candidate into %s entity", c.Kind, entity.Kind)
		}
		if err := db.AddVariant(entity.ID, c.DetectedName); err != nil {
			return nil, err
		}
	} else {
		entity, err = db.ResolveEntity(c.Kind, c.DetectedName)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			entity = &Entity{Kind: c.Kind, Name: c.DetectedName, Active: true}
			if err := db.CreateEntity(entity); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		UPDATE candidates SET status = 'accepted', entity_id = ?, resolved_at = ?
		WHERE id = ?`, entity.ID, now, candidateID)
	if err != nil {
		return nil, fmt.Errorf("accept candidate: %w", err)
	}
	return entity, nil
}

// RejectCandidate marks a pending candidate rejected. A later detection of
// the same name stages a new pending candidate.
func (db *DB) RejectCandidate(candidateID int64) error {
	c, err := db.GetCandidate(candidateID)
	if err != nil {
		return err
	}
	if c == nil {
		return apperrors.NewNotFound("candidate", candidateID)
	}
	if c.Status != CandidatePending {
		return apperrors.NewConflict(fmt.Sprintf("candidate %d already %s", candidateID, c.Status))
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		UPDATE candidates SET status = 'rejected', resolved_at = ? WHERE id = ?`, now, candidateID)
	if err != nil {
		return fmt.Errorf("reject candidate: %w", err)
	}
	return nil
}

func scanEntity(r rowScanner) (*Entity, error) {
	var e Entity
	var variants string
	var active int
	var parentID sql.NullInt64
	err := r.Scan(&e.ID, &e.Kind, &e.Name, &e.NameNorm, &variants, &e.Domain, &active, &parentID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Variants = parseStrings(variants)
	e.Active = active != 0
	if parentID.Valid {
		e.ParentID = &parentID.Int64
	}
	return &e, nil
}

func scanEntityRow(row *sql.Row) (*Entity, error) {
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	return e, nil
}

func scanCandidate(r rowScanner) (*Candidate, error) {
	var c Candidate
	var segmentID, entityID, resolvedAt sql.NullInt64
	err := r.Scan(&c.ID, &c.Kind, &c.DetectedName, &c.NameNorm, &c.Context,
		&segmentID, &c.Status, &entityID, &c.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if segmentID.Valid {
		c.SegmentID = &segmentID.Int64
	}
	if entityID.Valid {
		c.EntityID = &entityID.Int64
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Int64
	}
	return &c, nil
}
