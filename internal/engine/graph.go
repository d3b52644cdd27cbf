package engine

import (
	"fmt"
	"math"

	"github.com/jhatier/mnemo/internal/store"
)

// deriveEdges links a freshly ingested segment into the graph. Five edge
// types are derived, each from a different signal:
//
//	chronological: previous segment of the same origin
//	same_session:  same author and origin within the session window
//	semantic:      tag and entity-reference overlap with recent segments
//	same_group:    explicit group membership
//	emotional:     strong, near-identical emotional charge nearby
//
// Derivation is idempotent: re-running it upserts the same edge rows.
func (e *Engine) deriveEdges(seg *store.Segment) error {
	if err := e.linkChronological(seg); err != nil {
		return err
	}

	recent, err := e.DB.RecentSegments(e.Cfg.Graph.ScanWindow)
	if err != nil {
		return fmt.Errorf("scan window: %w", err)
	}

	if err := e.linkSession(seg, recent); err != nil {
		return err
	}
	if err := e.linkSemantic(seg, recent); err != nil {
		return err
	}
	if err := e.linkGroup(seg); err != nil {
		return err
	}
	if err := e.linkEmotional(seg, recent); err != nil {
		return err
	}
	return nil
}

func (e *Engine) linkChronological(seg *store.Segment) error {
	prev, err := e.DB.LastSegmentByOrigin(seg.SourceOrigin, seg.ID)
	if err != nil {
		return fmt.Errorf("chronological anchor: %w", err)
	}
	if prev == nil {
		return nil
	}
	return e.DB.UpsertEdge(&store.Edge{
		SourceID: seg.ID,
		TargetID: prev.ID,
		Type:     store.EdgeChronological,
		Weight:   1.0,
	})
}

func (e *Engine) linkSession(seg *store.Segment, recent []store.Segment) error {
	window := e.Cfg.Graph.SessionWindowSecs
	for i := range recent {
		other := &recent[i]
		if other.ID == seg.ID {
			continue
		}
		if other.Author != seg.Author || other.SourceOrigin != seg.SourceOrigin {
			continue
		}
		gap := seg.TimestampEpoch - other.TimestampEpoch
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if err := e.DB.UpsertEdge(&store.Edge{
			SourceID: seg.ID,
			TargetID: other.ID,
			Type:     store.EdgeSameSession,
			Weight:   1.0,
		}); err != nil {
			return err
		}
	}
	return nil
}

// linkSemantic connects segments about the same things. Shared tags and
// shared entity mentions both count toward the overlap threshold, so two
// segments naming the same two people link even without a tag in common.
func (e *Engine) linkSemantic(seg *store.Segment, recent []store.Segment) error {
	mine := semanticRefs(seg)
	if len(mine) == 0 {
		return nil
	}

	for i := range recent {
		other := &recent[i]
		if other.ID == seg.ID {
			continue
		}
		overlap := 0
		for ref := range semanticRefs(other) {
			if mine[ref] {
				overlap++
			}
		}
		if overlap < e.Cfg.Graph.TagOverlapMin {
			continue
		}
		weight := float64(overlap) / 4.0
		if weight > 1.0 {
			weight = 1.0
		}
		if err := e.DB.UpsertEdge(&store.Edge{
			SourceID: seg.ID,
			TargetID: other.ID,
			Type:     store.EdgeSemantic,
			Weight:   weight,
			Metadata: fmt.Sprintf(`{"shared_refs":%d}`, overlap),
		}); err != nil {
			return err
		}
	}
	return nil
}

// semanticRefs collects a segment's tags and entity mentions into one set,
// namespaced so a tag never collides with a person of the same name.
func semanticRefs(s *store.Segment) map[string]bool {
	refs := make(map[string]bool)
	add := func(prefix string, values []string) {
		for _, v := range values {
			refs[prefix+v] = true
		}
	}
	add("tag:", s.Tags)
	add("person:", s.People)
	add("project:", s.Projects)
	add("org:", s.Orgs)
	add("place:", s.Places)
	return refs
}

func (e *Engine) linkGroup(seg *store.Segment) error {
	if seg.GroupID == nil {
		return nil
	}
	members, err := e.DB.SegmentsByGroup(*seg.GroupID)
	if err != nil {
		return fmt.Errorf("group members: %w", err)
	}
	for i := range members {
		other := &members[i]
		if other.ID == seg.ID {
			continue
		}
		if err := e.DB.UpsertEdge(&store.Edge{
			SourceID: seg.ID,
			TargetID: other.ID,
			Type:     store.EdgeSameGroup,
			Weight:   1.0,
		}); err != nil {
			return err
		}
	}
	return nil
}

// linkEmotional connects segments with a strong and nearly identical
// emotional signature within a short window of recent memory.
func (e *Engine) linkEmotional(seg *store.Segment, recent []store.Segment) error {
	minValence := e.Cfg.Graph.EmotionMinValence
	if math.Abs(seg.EmotionValence) < minValence {
		return nil
	}

	window := e.Cfg.Graph.EmotionWindow
	seen := 0
	for i := range recent {
		other := &recent[i]
		if other.ID == seg.ID {
			continue
		}
		if seen >= window {
			break
		}
		seen++
		if math.Abs(other.EmotionValence) < minValence {
			continue
		}
		dv := seg.EmotionValence - other.EmotionValence
		da := seg.EmotionActivation - other.EmotionActivation
		dist := math.Sqrt(dv*dv + da*da)
		if dist >= e.Cfg.Graph.EmotionMaxDistance {
			continue
		}
		if err := e.DB.UpsertEdge(&store.Edge{
			SourceID: seg.ID,
			TargetID: other.ID,
			Type:     store.EdgeEmotional,
			Weight:   1.0 - dist,
		}); err != nil {
			return err
		}
	}
	return nil
}
