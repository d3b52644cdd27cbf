package store

import (
	"testing"

	apperrors "github.com/jhatier/mnemo/internal/errors"
)

func TestCreateAndListPillars(t *testing.T) {
	db := testDB(t)

	low := &Pillar{Statement: "Prefers quiet mornings", Category: "habits", Importance: 1}
	high := &Pillar{Statement: "Family comes first", Category: "values", Importance: 3}
	mid := &Pillar{Statement: "Runs three times a week", Category: "habits", Importance: 2}
	for _, p := range []*Pillar{low, high, mid} {
		if err := db.CreatePillar(p); err != nil {
			t.Fatalf("CreatePillar: %v", err)
		}
	}

	got, err := db.ListPillars("", 0, 10)
	if err != nil {
		t.Fatalf("ListPillars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d pillars, want 3", len(got))
	}
	// Importance descending
	if got[0].ID != high.ID || got[1].ID != mid.ID || got[2].ID != low.ID {
		t.Errorf("order = %d, %d, %d", got[0].ID, got[1].ID, got[2].ID)
	}

	got, err = db.ListPillars("habits", 2, 10)
	if err != nil {
		t.Fatalf("ListPillars filtered: %v", err)
	}
	if len(got) != 1 || got[0].ID != mid.ID {
		t.Errorf("filtered = %+v", got)
	}
}

func TestPillarValidation(t *testing.T) {
	db := testDB(t)

	if err := db.CreatePillar(&Pillar{Statement: "  "}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION for empty statement, got %v", err)
	}
	if err := db.CreatePillar(&Pillar{Statement: "x", Importance: 4}); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION for importance 4, got %v", err)
	}
}

func TestUpdatePillarImportance(t *testing.T) {
	db := testDB(t)

	p := &Pillar{Statement: "Values honesty", Importance: 1}
	if err := db.CreatePillar(p); err != nil {
		t.Fatalf("CreatePillar: %v", err)
	}

	if err := db.UpdatePillarImportance(p.ID, 3); err != nil {
		t.Fatalf("UpdatePillarImportance: %v", err)
	}
	got, _ := db.GetPillar(p.ID)
	if got.Importance != 3 {
		t.Errorf("importance = %d, want 3", got.Importance)
	}
	if got.Statement != "Values honesty" {
		t.Errorf("statement changed: %q", got.Statement)
	}

	if err := db.UpdatePillarImportance(999, 2); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
