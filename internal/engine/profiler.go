package engine

import (
	"strings"
)

// Query intents inferred from lexical cues and filter presence.
const (
	IntentTemporal = "temporal"
	IntentEntity   = "entity"
	IntentThematic = "thematic"
	IntentEmotion  = "emotion"
	IntentFactual  = "factual"
	IntentRecency  = "recency"
	IntentMixed    = "mixed"
)

// SearchFilters are the hard filters a caller may attach to a query.
type SearchFilters struct {
	Since    int64    `json:"since,omitempty"`
	Until    int64    `json:"until,omitempty"`
	Author   string   `json:"author,omitempty"`
	Origin   string   `json:"origin,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	People   []string `json:"people,omitempty"`
	Projects []string `json:"projects,omitempty"`
	GroupID  *int64   `json:"group_id,omitempty"`
}

// Weights is the per-signal weight vector. The five components always sum
// to 1.0 so scores are comparable across queries.
type Weights struct {
	Text    float64 `json:"text"`
	Tags    float64 `json:"tags"`
	Graph   float64 `json:"graph"`
	Recency float64 `json:"recency"`
	Emotion float64 `json:"emotion"`
}

// QueryProfile is the profiler's classification of one query.
type QueryProfile struct {
	Intent  string  `json:"intent"`
	Weights Weights `json:"weights"`
}

var temporalCues = []string{
	"when", "yesterday", "today", "last week", "last month", "last year",
	"ago", "recently", "morning", "evening", "date", "january", "february",
	"march", "april", "may", "june", "july", "august", "september",
	"october", "november", "december",
}

var emotionCues = []string{
	"felt", "feel", "feeling", "happy", "sad", "angry", "anxious", "excited",
	"frustrated", "joy", "fear", "mood", "emotional", "upset", "proud",
}

var entityCues = []string{
	"who", "whom", "person", "people", "met", "talked to", "spoke with",
}

var factualCues = []string{
	"what is", "what's", "fact", "always", "never", "principle", "rule",
}

// BuildProfile classifies a query and emits its signal weight vector.
// An empty or filter-only query defaults to a recency-dominant profile;
// a time filter with no text orders purely by recency.
func BuildProfile(query string, filters SearchFilters) QueryProfile {
	q := strings.ToLower(strings.TrimSpace(query))

	if q == "" {
		return QueryProfile{
			Intent:  IntentRecency,
			Weights: normalize(Weights{Recency: 1.0}),
		}
	}

	temporal := containsAny(q, temporalCues) || filters.Since > 0 || filters.Until > 0
	emotional := containsAny(q, emotionCues)
	entity := containsAny(q, entityCues) || len(filters.People) > 0 || len(filters.Projects) > 0
	factual := containsAny(q, factualCues)
	thematic := len(filters.Tags) > 0

	matched := 0
	for _, b := range []bool{temporal, emotional, entity, factual} {
		if b {
			matched++
		}
	}

	switch {
	case matched > 1:
		return QueryProfile{
			Intent:  IntentMixed,
			Weights: normalize(Weights{Text: 0.30, Tags: 0.20, Graph: 0.20, Recency: 0.15, Emotion: 0.15}),
		}
	case temporal:
		return QueryProfile{
			Intent:  IntentTemporal,
			Weights: normalize(Weights{Text: 0.20, Tags: 0.10, Graph: 0.10, Recency: 0.55, Emotion: 0.05}),
		}
	case emotional:
		return QueryProfile{
			Intent:  IntentEmotion,
			Weights: normalize(Weights{Text: 0.20, Tags: 0.10, Graph: 0.15, Recency: 0.10, Emotion: 0.45}),
		}
	case entity:
		return QueryProfile{
			Intent:  IntentEntity,
			Weights: normalize(Weights{Text: 0.25, Tags: 0.35, Graph: 0.25, Recency: 0.10, Emotion: 0.05}),
		}
	case factual:
		return QueryProfile{
			Intent:  IntentFactual,
			Weights: normalize(Weights{Text: 0.45, Tags: 0.25, Graph: 0.15, Recency: 0.10, Emotion: 0.05}),
		}
	case thematic:
		return QueryProfile{
			Intent:  IntentThematic,
			Weights: normalize(Weights{Text: 0.25, Tags: 0.40, Graph: 0.20, Recency: 0.10, Emotion: 0.05}),
		}
	default:
		return QueryProfile{
			Intent:  IntentThematic,
			Weights: normalize(Weights{Text: 0.40, Tags: 0.25, Graph: 0.20, Recency: 0.10, Emotion: 0.05}),
		}
	}
}

func containsAny(q string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(q, c) {
			return true
		}
	}
	return false
}

// normalize scales a weight vector so the components sum to exactly 1.0.
func normalize(w Weights) Weights {
	sum := w.Text + w.Tags + w.Graph + w.Recency + w.Emotion
	if sum <= 0 {
		return Weights{Recency: 1.0}
	}
	return Weights{
		Text:    w.Text / sum,
		Tags:    w.Tags / sum,
		Graph:   w.Graph / sum,
		Recency: w.Recency / sum,
		Emotion: w.Emotion / sum,
	}
}
