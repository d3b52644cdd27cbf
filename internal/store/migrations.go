package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "segments: memory segments with FTS index and repair journal",
		SQL: `
CREATE TABLE segments (
    id                 INTEGER PRIMARY KEY,
    timestamp          TEXT NOT NULL,
    timestamp_epoch    INTEGER NOT NULL,
    token_start        INTEGER NOT NULL DEFAULT 0,
    token_end          INTEGER NOT NULL DEFAULT 0,
    source_file        TEXT NOT NULL,
    source_nature      TEXT NOT NULL DEFAULT 'trace' CHECK (source_nature IN ('trace', 'document', 'reflexion')),
    source_origin      TEXT NOT NULL DEFAULT '',
    author             TEXT NOT NULL DEFAULT 'human' CHECK (author IN ('human', 'assistant', 'internal')),

    -- Emotion annotations
    emotion_valence    REAL NOT NULL DEFAULT 0.0,
    emotion_activation REAL NOT NULL DEFAULT 0.0,

    -- Derived annotations (JSON arrays of strings)
    tags               TEXT NOT NULL DEFAULT '[]',
    people             TEXT NOT NULL DEFAULT '[]',
    projects           TEXT NOT NULL DEFAULT '[]',
    orgs               TEXT NOT NULL DEFAULT '[]',
    places             TEXT NOT NULL DEFAULT '[]',
    summary            TEXT NOT NULL DEFAULT '',

    group_id           INTEGER,
    mnemonic_weight    REAL NOT NULL DEFAULT 0.5,
    confidence         REAL NOT NULL DEFAULT 0.5,
    created_at         INTEGER NOT NULL,

    UNIQUE (timestamp, source_origin)
);

CREATE INDEX idx_segments_epoch  ON segments(timestamp_epoch DESC);
CREATE INDEX idx_segments_origin ON segments(source_origin);
CREATE INDEX idx_segments_group  ON segments(group_id);
CREATE INDEX idx_segments_author ON segments(author);

CREATE VIRTUAL TABLE segment_fts USING fts5(
    summary, tags, people, projects, orgs, places
);

CREATE TABLE index_repair (
    id         INTEGER PRIMARY KEY,
    segment_id INTEGER NOT NULL,
    op         TEXT NOT NULL CHECK (op IN ('index', 'deindex')),
    reason     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "edges: typed weighted graph over segments",
		SQL: `
CREATE TABLE edges (
    source_id  INTEGER NOT NULL,
    target_id  INTEGER NOT NULL,
    type       TEXT NOT NULL CHECK (type IN ('chronological', 'same_session', 'semantic', 'same_group', 'emotional')),
    weight     REAL NOT NULL DEFAULT 1.0,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL,

    PRIMARY KEY (source_id, target_id, type),
    FOREIGN KEY (source_id) REFERENCES segments(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES segments(id) ON DELETE CASCADE
);

CREATE INDEX idx_edges_source ON edges(source_id, weight DESC);
CREATE INDEX idx_edges_target ON edges(target_id, weight DESC);
CREATE INDEX idx_edges_type   ON edges(type);
`,
	},
	{
		Version:     3,
		Description: "entities + candidates: canonical registry and resolution staging",
		SQL: `
CREATE TABLE entities (
    id         INTEGER PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('person', 'project', 'org')),
    name       TEXT NOT NULL,
    name_norm  TEXT NOT NULL,
    variants   TEXT NOT NULL DEFAULT '[]',
    domain     TEXT NOT NULL DEFAULT '',
    active     INTEGER NOT NULL DEFAULT 1,
    parent_id  INTEGER,
    created_at INTEGER NOT NULL,

    UNIQUE (kind, name_norm),
    FOREIGN KEY (parent_id) REFERENCES entities(id)
);

CREATE INDEX idx_entities_kind ON entities(kind, active);

CREATE TABLE candidates (
    id            INTEGER PRIMARY KEY,
    kind          TEXT NOT NULL CHECK (kind IN ('person', 'project', 'org')),
    detected_name TEXT NOT NULL,
    name_norm     TEXT NOT NULL,
    context       TEXT NOT NULL DEFAULT '',
    segment_id    INTEGER,
    status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
    entity_id     INTEGER,
    created_at    INTEGER NOT NULL,
    resolved_at   INTEGER,

    FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE SET NULL,
    FOREIGN KEY (entity_id) REFERENCES entities(id)
);

CREATE INDEX idx_candidates_status ON candidates(status, kind);
CREATE INDEX idx_candidates_norm   ON candidates(kind, name_norm);
`,
	},
	{
		Version:     4,
		Description: "pillars: durable high-importance facts",
		SQL: `
CREATE TABLE pillars (
    id         INTEGER PRIMARY KEY,
    statement  TEXT NOT NULL,
    category   TEXT NOT NULL DEFAULT '',
    importance INTEGER NOT NULL DEFAULT 0 CHECK (importance BETWEEN 0 AND 3),
    segment_id INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE SET NULL
);

CREATE INDEX idx_pillars_rank ON pillars(importance DESC, created_at DESC);
`,
	},
	{
		Version:     5,
		Description: "documents + chunks: reference corpus with chunk FTS",
		SQL: `
CREATE TABLE documents (
    id         TEXT PRIMARY KEY,
    source_uri TEXT NOT NULL UNIQUE,
    title      TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE chunks (
    id          INTEGER PRIMARY KEY,
    document_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    text        TEXT NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    tags        TEXT NOT NULL DEFAULT '[]',

    UNIQUE (document_id, chunk_index),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE chunk_fts USING fts5(
    text, tags
);
`,
	},
	{
		Version:     6,
		Description: "segment_vectors: opaque embedding storage",
		SQL: `
CREATE TABLE segment_vectors (
    segment_id INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (segment_id) REFERENCES segments(id) ON DELETE CASCADE
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
