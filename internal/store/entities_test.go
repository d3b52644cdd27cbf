package store

import (
	"testing"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Nadia  ":      "nadia",
		"NADIA KHOURY":   "nadia khoury",
		"nadia   khoury": "nadia khoury",
		"Hélène":         "hélène", // accents preserved
		"":               "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveEntityVariants(t *testing.T) {
	db := testDB(t)

	e := &Entity{Kind: KindPerson, Name: "Nadia Khoury", Active: true}
	if err := db.CreateEntity(e); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if err := db.AddVariant(e.ID, "Nadia"); err != nil {
		t.Fatalf("AddVariant: %v", err)
	}

	got, err := db.ResolveEntity(KindPerson, "nadia khoury")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Errorf("canonical resolution failed: %+v", got)
	}

	got, err = db.ResolveEntity(KindPerson, "NADIA")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Errorf("variant resolution failed: %+v", got)
	}

	got, err = db.ResolveEntity(KindProject, "Nadia")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if got != nil {
		t.Error("resolution crossed entity kinds")
	}
}

func TestCreateCandidatePendingNoDuplicate(t *testing.T) {
	db := testDB(t)

	c1 := &Candidate{Kind: KindPerson, DetectedName: "Jeremy"}
	if err := db.CreateCandidate(c1); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}

	// Re-detection while pending is a no-op, no second pending row.
	c2 := &Candidate{Kind: KindPerson, DetectedName: "jeremy"}
	if err := db.CreateCandidate(c2); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	if c2.ID != c1.ID {
		t.Errorf("second detection created a new pending candidate: %d vs %d", c2.ID, c1.ID)
	}

	pending, err := db.ListCandidates(CandidatePending, KindPerson)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestRejectThenRedetect(t *testing.T) {
	db := testDB(t)

	c1 := &Candidate{Kind: KindPerson, DetectedName: "Jeremy"}
	if err := db.CreateCandidate(c1); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	if err := db.RejectCandidate(c1.ID); err != nil {
		t.Fatalf("RejectCandidate: %v", err)
	}

	// A rejected name seen again stages a fresh pending candidate.
	c2 := &Candidate{Kind: KindPerson, DetectedName: "Jeremy"}
	if err := db.CreateCandidate(c2); err != nil {
		t.Fatalf("CreateCandidate after reject: %v", err)
	}
	if c2.ID == c1.ID {
		t.Error("re-detection reused the rejected candidate row")
	}
	if c2.Status != CandidatePending {
		t.Errorf("status = %q, want pending", c2.Status)
	}
}

func TestAcceptCandidateCreatesEntity(t *testing.T) {
	db := testDB(t)

	c := &Candidate{Kind: KindProject, DetectedName: "Atlas Rewrite"}
	if err := db.CreateCandidate(c); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}

	entity, err := db.AcceptCandidate(c.ID, 0)
	if err != nil {
		t.Fatalf("AcceptCandidate: %v", err)
	}
	if entity.Name != "Atlas Rewrite" || entity.Kind != KindProject {
		t.Errorf("entity = %+v", entity)
	}

	got, _ := db.GetCandidate(c.ID)
	if got.Status != CandidateAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}
	if got.EntityID == nil || *got.EntityID != entity.ID {
		t.Errorf("entity_id = %v, want %d", got.EntityID, entity.ID)
	}

	// Resolving twice is a conflict.
	if _, err := db.AcceptCandidate(c.ID, 0); !apperrors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected CONFLICT on double accept, got %v", err)
	}
}

func TestAcceptCandidateMergeVariant(t *testing.T) {
	db := testDB(t)

	e := &Entity{Kind: KindPerson, Name: "Nadia Khoury", Active: true}
	if err := db.CreateEntity(e); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	c := &Candidate{Kind: KindPerson, DetectedName: "Nadya"}
	if err := db.CreateCandidate(c); err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}

	entity, err := db.AcceptCandidate(c.ID, e.ID)
	if err != nil {
		t.Fatalf("AcceptCandidate merge: %v", err)
	}
	if entity.ID != e.ID {
		t.Errorf("merged into %d, want %d", entity.ID, e.ID)
	}

	resolved, err := db.ResolveEntity(KindPerson, "Nadya")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if resolved == nil || resolved.ID != e.ID {
		t.Errorf("variant not resolvable after merge: %+v", resolved)
	}
}

func TestProjectParentCycle(t *testing.T) {
	db := testDB(t)

	a := &Entity{Kind: KindProject, Name: "Alpha", Active: true}
	b := &Entity{Kind: KindProject, Name: "Beta", Active: true}
	for _, e := range []*Entity{a, b} {
		if err := db.CreateEntity(e); err != nil {
			t.Fatalf("CreateEntity: %v", err)
		}
	}

	if err := db.SetProjectParent(b.ID, a.ID); err != nil {
		t.Fatalf("SetProjectParent: %v", err)
	}
	if err := db.SetProjectParent(a.ID, b.ID); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION error for cycle, got %v", err)
	}
	if err := db.SetProjectParent(a.ID, a.ID); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION error for self-parent, got %v", err)
	}

	tree, err := db.ProjectTree(a.ID)
	if err != nil {
		t.Fatalf("ProjectTree: %v", err)
	}
	if len(tree) != 2 || tree[0].ID != a.ID || tree[1].ID != b.ID {
		t.Errorf("tree = %+v", tree)
	}
}
