package engine

import (
	"testing"
	"time"

	"github.com/jhatier/mnemo/internal/config"
	"github.com/jhatier/mnemo/internal/store"
)

// testEngine returns an engine over an in-memory store with a fixed clock.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := New(db, config.Default())
	eng.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return eng
}

func seg(ts string, origin string) store.Segment {
	return store.Segment{
		Timestamp:    ts,
		TokenStart:   0,
		TokenEnd:     100,
		SourceFile:   "trace.log",
		SourceOrigin: origin,
		Summary:      "a segment",
	}
}

func TestPutSegmentDedup(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	res1, err := eng.PutSegment(&s1)
	if err != nil {
		t.Fatalf("PutSegment: %v", err)
	}
	if res1.Deduplicated {
		t.Error("first ingest marked deduplicated")
	}

	// Same identity key: no new row, existing ID comes back.
	s2 := seg("2026-02-01T10:00:00Z", "laptop")
	s2.Summary = "different summary, same identity"
	res2, err := eng.PutSegment(&s2)
	if err != nil {
		t.Fatalf("PutSegment dedup: %v", err)
	}
	if !res2.Deduplicated || res2.ID != res1.ID {
		t.Errorf("res2 = %+v, want deduplicated id %d", res2, res1.ID)
	}

	count, _ := eng.DB.CountSegments()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// Same timestamp, different origin: distinct segment.
	s3 := seg("2026-02-01T10:00:00Z", "phone")
	res3, err := eng.PutSegment(&s3)
	if err != nil {
		t.Fatalf("PutSegment other origin: %v", err)
	}
	if res3.Deduplicated {
		t.Error("distinct origin marked deduplicated")
	}
}

func TestChronologicalEdge(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s2 := seg("2026-02-01T11:00:00Z", "laptop")
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}
	if _, err := eng.PutSegment(&s2); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeChronological)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID || edges[0].Weight != 1.0 {
		t.Errorf("edges = %+v, want single edge to %d weight 1.0", edges, s1.ID)
	}
}

func TestSameGroupEdge(t *testing.T) {
	eng := testEngine(t)

	group := int64(7)
	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.GroupID = &group
	s3 := seg("2026-02-03T10:00:00Z", "laptop")
	s3.GroupID = &group
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}
	if _, err := eng.PutSegment(&s3); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	edges, err := eng.DB.EdgesFrom(s3.ID, store.EdgeSameGroup)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID || edges[0].Weight != 1.0 {
		t.Errorf("edges = %+v, want same_group edge to %d weight 1.0", edges, s1.ID)
	}
}

func TestSameSessionEdge(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s2 := seg("2026-02-01T10:04:00Z", "laptop") // 240s later, inside the window
	s3 := seg("2026-02-01T11:00:00Z", "laptop") // far outside
	for _, s := range []*store.Segment{&s1, &s2, &s3} {
		if _, err := eng.PutSegment(s); err != nil {
			t.Fatalf("PutSegment: %v", err)
		}
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeSameSession)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID {
		t.Errorf("edges = %+v, want same_session edge to %d", edges, s1.ID)
	}

	edges, _ = eng.DB.EdgesFrom(s3.ID, store.EdgeSameSession)
	if len(edges) != 0 {
		t.Errorf("segment outside window got session edges: %+v", edges)
	}
}

func TestSemanticEdge(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.Tags = []string{"kayak", "river", "summer"}
	s2 := seg("2026-02-05T10:00:00Z", "phone")
	s2.Tags = []string{"kayak", "river", "gear"}
	s3 := seg("2026-02-06T10:00:00Z", "phone")
	s3.Tags = []string{"cooking"}
	for _, s := range []*store.Segment{&s1, &s2, &s3} {
		if _, err := eng.PutSegment(s); err != nil {
			t.Fatalf("PutSegment: %v", err)
		}
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeSemantic)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID {
		t.Fatalf("edges = %+v, want semantic edge to %d", edges, s1.ID)
	}
	if edges[0].Weight != 0.5 { // 2 shared tags / 4
		t.Errorf("weight = %f, want 0.5", edges[0].Weight)
	}

	edges, _ = eng.DB.EdgesFrom(s3.ID, store.EdgeSemantic)
	if len(edges) != 0 {
		t.Errorf("no-overlap segment got semantic edges: %+v", edges)
	}
}

func TestSemanticEdgeFromSharedPeople(t *testing.T) {
	eng := testEngine(t)

	// No tags at all; the shared people alone must cross the threshold.
	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.People = []string{"Alice Durand", "Bob Marchand"}
	s2 := seg("2026-02-05T10:00:00Z", "phone")
	s2.People = []string{"Alice Durand", "Bob Marchand"}
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}
	if _, err := eng.PutSegment(&s2); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeSemantic)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID {
		t.Fatalf("edges = %+v, want semantic edge to %d", edges, s1.ID)
	}
	if edges[0].Weight != 0.5 { // 2 shared references / 4
		t.Errorf("weight = %f, want 0.5", edges[0].Weight)
	}
}

func TestSemanticEdgeMixedTagAndEntityOverlap(t *testing.T) {
	eng := testEngine(t)

	// One shared tag plus one shared person add up across lists.
	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.Tags = []string{"ceramics"}
	s1.People = []string{"Alice Durand"}
	s2 := seg("2026-02-05T10:00:00Z", "phone")
	s2.Tags = []string{"ceramics"}
	s2.People = []string{"Alice Durand"}
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}
	if _, err := eng.PutSegment(&s2); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeSemantic)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID || edges[0].Weight != 0.5 {
		t.Errorf("edges = %+v, want semantic edge to %d weight 0.5", edges, s1.ID)
	}
}

func TestEmotionalEdge(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.EmotionValence = 0.8
	s1.EmotionActivation = 0.7
	s2 := seg("2026-02-01T12:00:00Z", "phone")
	s2.EmotionValence = 0.82
	s2.EmotionActivation = 0.72
	s3 := seg("2026-02-01T13:00:00Z", "phone")
	s3.EmotionValence = 0.1 // weak charge, never linked
	for _, s := range []*store.Segment{&s1, &s2, &s3} {
		if _, err := eng.PutSegment(s); err != nil {
			t.Fatalf("PutSegment: %v", err)
		}
	}

	edges, err := eng.DB.EdgesFrom(s2.ID, store.EdgeEmotional)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetID != s1.ID {
		t.Errorf("edges = %+v, want emotional edge to %d", edges, s1.ID)
	}

	edges, _ = eng.DB.EdgesFrom(s3.ID, store.EdgeEmotional)
	if len(edges) != 0 {
		t.Errorf("weak-valence segment got emotional edges: %+v", edges)
	}
}

func TestPutSegmentEdgeFailureRejectsIngest(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	// Break edge writes so the next ingest cannot link.
	if _, err := eng.DB.Exec(`DROP TABLE edges`); err != nil {
		t.Fatalf("drop edges: %v", err)
	}

	s2 := seg("2026-02-01T11:00:00Z", "laptop")
	if _, err := eng.PutSegment(&s2); err == nil {
		t.Fatal("ingest acknowledged despite failed edge derivation")
	}

	count, _ := eng.DB.CountSegments()
	if count != 1 {
		t.Errorf("count = %d, want 1 (failed ingest must not keep its row)", count)
	}
}

func TestPutSegmentsBatchIsolation(t *testing.T) {
	eng := testEngine(t)

	batch := []store.Segment{
		seg("2026-02-01T11:00:00Z", "laptop"),
		{SourceFile: "trace.log"}, // no timestamp, rejected
		seg("2026-02-01T10:00:00Z", "laptop"),
	}
	result := eng.PutSegments(batch)

	if result.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", result.Succeeded)
	}
	if len(result.Failed) != 1 || result.Failed[0].Index != 1 {
		t.Errorf("failed = %+v", result.Failed)
	}

	// Chronological ordering inside the batch: the later segment must have
	// an edge to the earlier one even though it appeared first in the input.
	segs, err := eng.DB.RecentSegments(10)
	if err != nil {
		t.Fatalf("RecentSegments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments", len(segs))
	}
	newest := segs[0]
	edges, _ := eng.DB.EdgesFrom(newest.ID, store.EdgeChronological)
	if len(edges) != 1 {
		t.Errorf("batch ordering broke chronological edges: %+v", edges)
	}
}

func TestStageCandidates(t *testing.T) {
	eng := testEngine(t)

	known := &store.Entity{Kind: store.KindPerson, Name: "Nadia", Active: true}
	if err := eng.DB.CreateEntity(known); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	s := seg("2026-02-01T10:00:00Z", "laptop")
	s.People = []string{"Nadia", "Jeremy"}
	s.Projects = []string{"Atlas"}
	if _, err := eng.PutSegment(&s); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	pending, err := eng.DB.ListCandidates(store.CandidatePending, "")
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2 (known name must not be staged)", len(pending))
	}
	names := map[string]bool{}
	for _, c := range pending {
		names[c.DetectedName] = true
	}
	if !names["Jeremy"] || !names["Atlas"] {
		t.Errorf("staged = %v", names)
	}
}

func TestRejectedNameRestaged(t *testing.T) {
	eng := testEngine(t)

	s1 := seg("2026-02-01T10:00:00Z", "laptop")
	s1.People = []string{"Jeremy"}
	if _, err := eng.PutSegment(&s1); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	pending, _ := eng.DB.ListCandidates(store.CandidatePending, store.KindPerson)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if err := eng.RejectCandidate(pending[0].ID); err != nil {
		t.Fatalf("RejectCandidate: %v", err)
	}

	s2 := seg("2026-02-02T10:00:00Z", "laptop")
	s2.People = []string{"Jeremy"}
	if _, err := eng.PutSegment(&s2); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	pending, _ = eng.DB.ListCandidates(store.CandidatePending, store.KindPerson)
	if len(pending) != 1 || pending[0].DetectedName != "Jeremy" {
		t.Errorf("rejected name not restaged: %+v", pending)
	}
}

func TestReannotate(t *testing.T) {
	eng := testEngine(t)

	s := seg("2026-02-01T10:00:00Z", "laptop")
	if _, err := eng.PutSegment(&s); err != nil {
		t.Fatalf("PutSegment: %v", err)
	}

	updated := store.Segment{
		ID:      s.ID,
		Summary: "revised after review",
		Tags:    []string{"review"},
	}
	if err := eng.Reannotate(&updated); err != nil {
		t.Fatalf("Reannotate: %v", err)
	}

	got, _ := eng.DB.GetSegment(s.ID)
	if got.Summary != "revised after review" {
		t.Errorf("summary = %q", got.Summary)
	}
	// Identity fields untouched.
	if got.Timestamp != s.Timestamp || got.SourceOrigin != s.SourceOrigin {
		t.Errorf("identity fields changed: %+v", got)
	}
}
