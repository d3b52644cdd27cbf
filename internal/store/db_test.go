package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	if db.Path != ":memory:" {
		t.Errorf("Path = %q, want :memory:", db.Path)
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 6 {
		t.Errorf("SchemaVersion = %d, want 6", v)
	}
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"schema_versions", "segments", "segment_fts", "index_repair",
		"edges", "entities", "candidates", "pillars",
		"documents", "chunks", "chunk_fts", "segment_vectors",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSegmentConstraints(t *testing.T) {
	db := testDB(t)

	// Valid insert
	_, err := db.Exec(`
		INSERT INTO segments (timestamp, timestamp_epoch, source_file, created_at)
		VALUES ('2026-01-01T00:00:00Z', 1767225600, 'trace.log', 1000)
	`)
	if err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}

	// Same identity key must be rejected
	_, err = db.Exec(`
		INSERT INTO segments (timestamp, timestamp_epoch, source_file, created_at)
		VALUES ('2026-01-01T00:00:00Z', 1767225600, 'other.log', 1000)
	`)
	if err == nil {
		t.Error("expected unique violation for duplicate identity key, got nil")
	}

	// Invalid edge type must be rejected
	_, err = db.Exec(`
		INSERT INTO edges (source_id, target_id, type, created_at) VALUES (1, 1, 'bogus', 1000)
	`)
	if err == nil {
		t.Error("expected check violation for invalid edge type, got nil")
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "mnemo.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	// Hold unread cursors so the pool grows past its first connection and
	// the write below lands on a fresh one.
	var held []*sql.Rows
	for i := 0; i < 4; i++ {
		rows, err := db.Query("SELECT id FROM segments")
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		held = append(held, rows)
	}
	defer func() {
		for _, rows := range held {
			rows.Close()
		}
	}()

	err = db.UpsertEdge(&Edge{SourceID: 9991, TargetID: 9992, Type: EdgeChronological, Weight: 1.0})
	if !apperrors.Is(err, apperrors.ErrIntegrity) {
		t.Errorf("dangling edge accepted on pooled connection, got %v", err)
	}
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
