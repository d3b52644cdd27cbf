package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jhatier/mnemo/internal/store"
)

// SearchResult is one scored retrieval hit.
type SearchResult struct {
	SegmentID      int64          `json:"segment_id"`
	Score          float64        `json:"score"`
	MatchedSignals []string       `json:"matched_signals"`
	Segment        *store.Segment `json:"segment,omitempty"`
}

// signalScores accumulates normalized per-signal scores for one candidate.
// scanned marks candidates produced by the filter-only recency scan rather
// than by a match.
type signalScores struct {
	text    float64
	tags    float64
	graph   float64
	recency float64
	emotion float64
	scanned bool
}

// Search runs the three candidate generations (full-text, tag/entity
// overlap, graph expansion), merges them, scores each candidate by the
// profile's weighted sum, and returns an ordered, bounded result list.
// A segment matching no signal never appears. Identical query, weights,
// and store state always produce the same ordering.
func (e *Engine) Search(query string, filters SearchFilters, limit int) (QueryProfile, []SearchResult, error) {
	if limit <= 0 {
		limit = e.Cfg.Search.DefaultLimit
	}
	if limit > e.Cfg.Search.MaxLimit {
		limit = e.Cfg.Search.MaxLimit
	}

	profile := BuildProfile(query, filters)
	scores := make(map[int64]*signalScores)
	at := func(id int64) *signalScores {
		s, ok := scores[id]
		if !ok {
			s = &signalScores{}
			scores[id] = s
		}
		return s
	}

	// Generation 1: full-text match, score normalized by rank position.
	matches, err := e.DB.SearchIndex(query, e.Cfg.Search.MaxLimit)
	if err != nil {
		return profile, nil, fmt.Errorf("text generation: %w", err)
	}
	for _, m := range matches {
		at(m.SegmentID).text = float64(len(matches)-m.Rank) / float64(len(matches))
	}

	// Generation 2: tag and entity overlap against the filtered set.
	if len(filters.Tags) > 0 || len(filters.People) > 0 || len(filters.Projects) > 0 {
		overlapped, err := e.DB.FilterSegments(store.SegmentFilters{
			Since: filters.Since, Until: filters.Until,
			Author: filters.Author, Origin: filters.Origin,
			GroupID: filters.GroupID,
			Tags:    filters.Tags, People: filters.People, Projects: filters.Projects,
		}, e.Cfg.Search.MaxLimit)
		if err != nil {
			return profile, nil, fmt.Errorf("tag generation: %w", err)
		}
		for _, seg := range overlapped {
			// Every requested value matched, so overlap is full by construction.
			at(seg.ID).tags = 1.0
		}
	}

	// Filter-only or empty query: the filtered scan itself is the candidate
	// set, ranked by recency.
	if query == "" && len(scores) == 0 {
		scanned, err := e.DB.FilterSegments(store.SegmentFilters{
			Since: filters.Since, Until: filters.Until,
			Author: filters.Author, Origin: filters.Origin,
			GroupID: filters.GroupID,
		}, e.Cfg.Search.MaxLimit)
		if err != nil {
			return profile, nil, fmt.Errorf("recency generation: %w", err)
		}
		for _, seg := range scanned {
			at(seg.ID).scanned = true
		}
	}

	// Generation 3: bounded graph expansion outward from segments already
	// matched by the other two generations, heaviest edges first.
	var seeds []int64
	for _, id := range sortedIDs(scores) {
		if s := scores[id]; s.text > 0 || s.tags > 0 {
			seeds = append(seeds, id)
		}
	}
	e.expandGraph(seeds, scores)

	if len(scores) == 0 {
		return profile, []SearchResult{}, nil
	}

	segs, err := e.DB.SegmentsByIDs(sortedIDs(scores))
	if err != nil {
		return profile, nil, fmt.Errorf("load candidates: %w", err)
	}
	byID := make(map[int64]*store.Segment, len(segs))
	for i := range segs {
		byID[segs[i].ID] = &segs[i]
	}

	nowEpoch := e.now().Unix()
	var results []SearchResult
	for id, s := range scores {
		seg, ok := byID[id]
		if !ok {
			continue
		}
		if !passesFilters(seg, filters) {
			continue
		}

		if profile.Intent == IntentRecency {
			// Filter-only queries order purely by timestamp, so the mnemonic
			// weight must not disturb the ranking.
			s.recency = baseRecency(seg, nowEpoch)
		} else {
			s.recency = recencyScore(seg, nowEpoch)
		}
		s.emotion = emotionScore(seg, query)

		w := profile.Weights
		score := w.Text*s.text + w.Tags*s.tags + w.Graph*s.graph +
			w.Recency*s.recency + w.Emotion*s.emotion

		var signals []string
		if s.text > 0 {
			signals = append(signals, "text")
		}
		if s.tags > 0 {
			signals = append(signals, "tags")
		}
		if s.graph > 0 {
			signals = append(signals, "graph")
		}
		if s.scanned {
			signals = append(signals, "recency")
		}

		results = append(results, SearchResult{
			SegmentID:      id,
			Score:          score,
			MatchedSignals: signals,
			Segment:        seg,
		})
	}

	// Score descending, ties broken by recency then ID for a stable order.
	sort.Slice(results, func(a, b int) bool {
		ra, rb := results[a], results[b]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		if ra.Segment.TimestampEpoch != rb.Segment.TimestampEpoch {
			return ra.Segment.TimestampEpoch > rb.Segment.TimestampEpoch
		}
		return ra.SegmentID > rb.SegmentID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return profile, results, nil
}

// expandGraph walks outward from the seed candidates, following edges in
// weight order with bounded depth and fan-out. Discovered segments earn a
// graph score that fades with distance.
func (e *Engine) expandGraph(seeds []int64, scores map[int64]*signalScores) {
	maxDepth := e.Cfg.Graph.MaxDepth
	fanout := e.Cfg.Graph.Fanout

	visited := make(map[int64]bool, len(seeds))
	for _, id := range seeds {
		visited[id] = true
	}

	frontier := seeds
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, id := range frontier {
			edges, err := e.DB.Neighbors(id)
			if err != nil {
				continue
			}
			taken := 0
			for _, edge := range edges {
				if taken >= fanout {
					break
				}
				other := edge.TargetID
				if other == id {
					other = edge.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				taken++

				s, ok := scores[other]
				if !ok {
					s = &signalScores{}
					scores[other] = s
				}
				g := edge.Weight / float64(depth+1)
				if g > s.graph {
					s.graph = g
				}
				next = append(next, other)
			}
		}
		frontier = next
	}
}

// baseRecency decays linearly with age over a year, floored at 0.1.
func baseRecency(seg *store.Segment, nowEpoch int64) float64 {
	ageDays := float64(nowEpoch-seg.TimestampEpoch) / 86400.0
	if ageDays < 0 {
		ageDays = 0
	}
	base := 1.0 - ageDays/365.0
	if base < 0.1 {
		base = 0.1
	}
	return base
}

// recencyScore is the base recency scaled by the segment's mnemonic weight.
func recencyScore(seg *store.Segment, nowEpoch int64) float64 {
	return baseRecency(seg, nowEpoch) * (0.5 + 0.5*seg.MnemonicWeight)
}

// emotionScore reflects the strength of a segment's emotional charge when
// the query carries emotional cues, zero otherwise. Cue matching is
// case-insensitive, same as intent classification.
func emotionScore(seg *store.Segment, query string) float64 {
	if !containsAny(strings.ToLower(query), emotionCues) {
		return 0
	}
	return math.Abs(seg.EmotionValence)*0.7 + seg.EmotionActivation*0.3
}

func passesFilters(seg *store.Segment, f SearchFilters) bool {
	if f.Since > 0 && seg.TimestampEpoch < f.Since {
		return false
	}
	if f.Until > 0 && seg.TimestampEpoch > f.Until {
		return false
	}
	if f.Author != "" && seg.Author != f.Author {
		return false
	}
	if f.Origin != "" && seg.SourceOrigin != f.Origin {
		return false
	}
	if f.GroupID != nil && (seg.GroupID == nil || *seg.GroupID != *f.GroupID) {
		return false
	}
	return true
}

func sortedIDs(scores map[int64]*signalScores) []int64 {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}
