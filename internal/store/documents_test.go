package store

import (
	"testing"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

func TestCreateAndGetDocument(t *testing.T) {
	db := testDB(t)

	doc := &Document{SourceURI: "file:///notes/2026-02-trip.md", Title: "Trip notes"}
	chunks := []Chunk{
		{Text: "Day one we hiked to the ridge", TokenCount: 8, Tags: []string{"hiking"}},
		{Text: "Day two was all rain and card games", TokenCount: 9},
	}
	if err := db.CreateDocument(doc, chunks); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected generated document ID")
	}

	got, gotChunks, err := db.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got == nil || got.Title != "Trip notes" {
		t.Errorf("document = %+v", got)
	}
	if len(gotChunks) != 2 || gotChunks[0].ChunkIndex != 0 || gotChunks[1].ChunkIndex != 1 {
		t.Errorf("chunks = %+v", gotChunks)
	}

	// Duplicate source URI is a conflict.
	dup := &Document{SourceURI: "file:///notes/2026-02-trip.md"}
	if err := db.CreateDocument(dup, nil); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected CONFLICT, got %v", err)
	}
}

func TestSearchChunks(t *testing.T) {
	db := testDB(t)

	doc := &Document{SourceURI: "file:///notes/recipes.md", Title: "Recipes"}
	chunks := []Chunk{
		{Text: "Sourdough starter needs daily feeding"},
		{Text: "Pizza dough rests overnight in the fridge"},
	}
	if err := db.CreateDocument(doc, chunks); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	matches, err := db.SearchChunks("sourdough", 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].DocumentTitle != "Recipes" || matches[0].SourceURI != "file:///notes/recipes.md" {
		t.Errorf("match = %+v", matches[0])
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)

	doc := &Document{SourceURI: "file:///notes/tmp.md"}
	if err := db.CreateDocument(doc, []Chunk{{Text: "ephemeral content"}}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	if err := db.DeleteDocument(doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	got, _, err := db.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got != nil {
		t.Error("document still present after delete")
	}

	matches, err := db.SearchChunks("ephemeral", 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("deleted chunks still indexed: %v", matches)
	}
}
