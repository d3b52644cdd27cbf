package store

import (
	"testing"
)

func TestSearchIndexRanking(t *testing.T) {
	db := testDB(t)

	a := sampleSegment("2026-02-01T10:00:00Z", 1769940000, "laptop")
	a.Summary = "Kayaking trip on the river"
	a.Tags = []string{"kayak", "outdoors"}
	b := sampleSegment("2026-02-02T10:00:00Z", 1770026400, "laptop")
	b.Summary = "Bought new kayak paddles, kayak maintenance notes"
	b.Tags = []string{"kayak"}
	for _, s := range []*Segment{a, b} {
		if err := db.InsertSegment(s); err != nil {
			t.Fatalf("InsertSegment: %v", err)
		}
	}

	matches, err := db.SearchIndex("kayak", 10)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Rank != 0 || matches[1].Rank != 1 {
		t.Errorf("ranks = %d, %d", matches[0].Rank, matches[1].Rank)
	}

	// Punctuation in the query must not break the FTS expression.
	if _, err := db.SearchIndex(`kayak "trip" AND (river)`, 10); err != nil {
		t.Errorf("quoted query failed: %v", err)
	}

	// Empty query matches nothing.
	matches, err = db.SearchIndex("   ", 10)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("empty query returned %d matches", len(matches))
	}
}

func TestRepairIndex(t *testing.T) {
	db := testDB(t)

	seg := sampleSegment("2026-02-01T10:00:00Z", 1769940000, "laptop")
	if err := db.InsertSegment(seg); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}

	// Simulate a failed index write: drop the FTS row and journal it.
	if err := db.deindexSegment(seg.ID); err != nil {
		t.Fatalf("deindex: %v", err)
	}
	db.recordIndexFailure(seg.ID, "index", nil)

	pending, err := db.PendingRepairs()
	if err != nil {
		t.Fatalf("PendingRepairs: %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}

	repaired, err := db.RepairIndex()
	if err != nil {
		t.Fatalf("RepairIndex: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	matches, err := db.SearchIndex("planning", 10)
	if err != nil {
		t.Fatalf("SearchIndex: %v", err)
	}
	if len(matches) != 1 || matches[0].SegmentID != seg.ID {
		t.Errorf("segment not reindexed: %v", matches)
	}

	pending, _ = db.PendingRepairs()
	if pending != 0 {
		t.Errorf("journal not drained: %d entries left", pending)
	}
}

func TestVerifyIndex(t *testing.T) {
	db := testDB(t)

	seg := sampleSegment("2026-02-01T10:00:00Z", 1769940000, "laptop")
	if err := db.InsertSegment(seg); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}

	missing, orphans, err := db.VerifyIndex()
	if err != nil {
		t.Fatalf("VerifyIndex: %v", err)
	}
	if len(missing) != 0 || len(orphans) != 0 {
		t.Errorf("consistent index reported missing=%v orphans=%v", missing, orphans)
	}

	if err := db.deindexSegment(seg.ID); err != nil {
		t.Fatalf("deindex: %v", err)
	}
	missing, _, err = db.VerifyIndex()
	if err != nil {
		t.Fatalf("VerifyIndex: %v", err)
	}
	if len(missing) != 1 || missing[0] != seg.ID {
		t.Errorf("missing = %v, want [%d]", missing, seg.ID)
	}
}
