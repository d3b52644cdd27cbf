package engine

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/jhatier/mnemo/internal/errors"
	"github.com/jhatier/mnemo/internal/store"
)

var validNatures = map[string]bool{
	"trace":     true,
	"document":  true,
	"reflexion": true,
}

var validAuthors = map[string]bool{
	"human":     true,
	"assistant": true,
	"internal":  true,
}

// validateSegment checks identity fields, reconciles the two timestamp
// representations, enforces value bounds, and normalizes list fields.
// Defaults fill in where the input is silent.
func (e *Engine) validateSegment(seg *store.Segment) error {
	seg.Timestamp = strings.TrimSpace(seg.Timestamp)
	seg.SourceFile = strings.TrimSpace(seg.SourceFile)
	seg.SourceOrigin = strings.TrimSpace(seg.SourceOrigin)

	if seg.Timestamp == "" && seg.TimestampEpoch == 0 {
		return apperrors.NewValidation("segment requires a timestamp")
	}
	if seg.SourceFile == "" {
		return apperrors.NewValidation("segment requires a source_file")
	}
	if seg.TokenStart < 0 || seg.TokenEnd < 0 {
		return apperrors.NewValidation("token offsets must not be negative")
	}
	if seg.TokenEnd != 0 && seg.TokenEnd < seg.TokenStart {
		return apperrors.NewValidationf("token_end %d precedes token_start %d", seg.TokenEnd, seg.TokenStart)
	}

	// The ISO timestamp and the epoch must agree; whichever side is missing
	// is derived from the other.
	if seg.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, seg.Timestamp)
		if err != nil {
			return apperrors.NewValidationf("timestamp %q is not RFC 3339", seg.Timestamp)
		}
		epoch := t.Unix()
		if seg.TimestampEpoch == 0 {
			seg.TimestampEpoch = epoch
		} else if seg.TimestampEpoch != epoch {
			return apperrors.NewValidationf(
				"timestamp %q and timestamp_epoch %d disagree", seg.Timestamp, seg.TimestampEpoch)
		}
	} else {
		seg.Timestamp = time.Unix(seg.TimestampEpoch, 0).UTC().Format(time.RFC3339)
	}

	if seg.SourceNature == "" {
		seg.SourceNature = "trace"
	}
	if !validNatures[seg.SourceNature] {
		return apperrors.NewValidationf("unknown source_nature %q", seg.SourceNature)
	}
	if seg.Author == "" {
		seg.Author = "human"
	}
	if !validAuthors[seg.Author] {
		return apperrors.NewValidationf("unknown author %q", seg.Author)
	}

	if err := validateBounds(seg); err != nil {
		return err
	}

	normalizeLists(seg)
	return nil
}

func validateBounds(seg *store.Segment) error {
	if seg.EmotionValence < -1 || seg.EmotionValence > 1 {
		return apperrors.NewValidationf("emotion_valence %.3f out of range [-1, 1]", seg.EmotionValence)
	}
	if seg.EmotionActivation < 0 || seg.EmotionActivation > 1 {
		return apperrors.NewValidationf("emotion_activation %.3f out of range [0, 1]", seg.EmotionActivation)
	}
	if seg.MnemonicWeight < 0 || seg.MnemonicWeight > 1 {
		return apperrors.NewValidationf("mnemonic_weight %.3f out of range [0, 1]", seg.MnemonicWeight)
	}
	if seg.Confidence < 0 || seg.Confidence > 1 {
		return apperrors.NewValidationf("confidence %.3f out of range [0, 1]", seg.Confidence)
	}
	return nil
}

func normalizeLists(seg *store.Segment) {
	seg.Tags = dedupeSorted(seg.Tags)
	seg.People = dedupeSorted(seg.People)
	seg.Projects = dedupeSorted(seg.Projects)
	seg.Orgs = dedupeSorted(seg.Orgs)
	seg.Places = dedupeSorted(seg.Places)
	seg.Summary = strings.TrimSpace(seg.Summary)
}

// dedupeSorted trims entries, drops empties and duplicates, and sorts the
// result so stored lists are canonical.
func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
