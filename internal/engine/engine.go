package engine

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jhatier/mnemo/internal/config"
	apperrors "github.com/jhatier/mnemo/internal/errors"
	"github.com/jhatier/mnemo/internal/store"
)

// Engine orchestrates segment ingestion, graph derivation, entity staging,
// retrieval, and decay.
type Engine struct {
	DB  *store.DB
	Cfg *config.Config

	// Serializes writes so graph derivation sees a consistent prior state.
	mu sync.Mutex

	// Injectable clock for deterministic tests.
	now func() time.Time

	stopCh chan struct{}
}

// New creates an Engine with the given store and configuration.
func New(db *store.DB, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		DB:     db,
		Cfg:    cfg,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// PutResult reports the outcome of ingesting one segment.
type PutResult struct {
	ID           int64 `json:"id"`
	Deduplicated bool  `json:"deduplicated"`
}

// PutSegment validates and persists a segment, derives its graph edges, and
// stages unknown entity names for resolution. A segment whose identity key
// (timestamp, source origin) already exists is not re-inserted; the existing
// ID comes back with Deduplicated set.
func (e *Engine) PutSegment(seg *store.Segment) (*PutResult, error) {
	if err := e.validateSegment(seg); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.DB.FindByDedupKey(seg.Timestamp, seg.SourceOrigin)
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if existing != nil {
		return &PutResult{ID: existing.ID, Deduplicated: true}, nil
	}

	if err := e.DB.InsertSegment(seg); err != nil {
		return nil, err
	}

	if err := e.deriveEdges(seg); err != nil {
		// A segment's edges must be queryable the moment ingest returns, so
		// undo the primary write rather than acknowledge a half-linked row.
		if delErr := e.DB.DeleteSegment(seg.ID); delErr != nil {
			log.Printf("engine: rollback of segment %d after edge failure: %v", seg.ID, delErr)
		}
		return nil, fmt.Errorf("derive edges for segment %d: %w", seg.ID, err)
	}

	e.stageCandidates(seg)

	return &PutResult{ID: seg.ID, Deduplicated: false}, nil
}

// BatchFailure records one rejected item of a batch.
type BatchFailure struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason"`
}

// BatchResult reports a batch ingestion: per-item isolation, one bad
// segment never blocks the rest.
type BatchResult struct {
	Succeeded    int            `json:"succeeded"`
	Deduplicated int            `json:"deduplicated"`
	Failed       []BatchFailure `json:"failed,omitempty"`
}

// PutSegments ingests a batch in chronological order so that edge
// derivation sees earlier segments before later ones.
func (e *Engine) PutSegments(segs []store.Segment) *BatchResult {
	// Validation has not run yet, so derive a sort key from whichever
	// timestamp representation the input carries.
	epochOf := func(s *store.Segment) int64 {
		if s.TimestampEpoch != 0 {
			return s.TimestampEpoch
		}
		if t, err := time.Parse(time.RFC3339, s.Timestamp); err == nil {
			return t.Unix()
		}
		return 0
	}

	idx := make([]int, len(segs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return epochOf(&segs[idx[a]]) < epochOf(&segs[idx[b]])
	})

	result := &BatchResult{}
	for _, i := range idx {
		res, err := e.PutSegment(&segs[i])
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				Index:     i,
				Timestamp: segs[i].Timestamp,
				Reason:    err.Error(),
			})
			continue
		}
		if res.Deduplicated {
			result.Deduplicated++
		}
		result.Succeeded++
	}
	return result
}

// stageCandidates files every unresolved name from the segment's entity
// lists as a pending resolution candidate. Staging failures are logged,
// never fatal to ingestion.
func (e *Engine) stageCandidates(seg *store.Segment) {
	stage := func(kind string, names []string) {
		for _, name := range names {
			entity, err := e.DB.ResolveEntity(kind, name)
			if err != nil {
				log.Printf("engine: resolve %s %q: %v", kind, name, err)
				continue
			}
			if entity != nil {
				continue
			}
			c := &store.Candidate{
				Kind:         kind,
				DetectedName: name,
				Context:      seg.Summary,
				SegmentID:    &seg.ID,
			}
			if err := e.DB.CreateCandidate(c); err != nil {
				log.Printf("engine: stage %s candidate %q: %v", kind, name, err)
			}
		}
	}
	stage(store.KindPerson, seg.People)
	stage(store.KindProject, seg.Projects)
	stage(store.KindOrg, seg.Orgs)
}

// AcceptCandidate resolves a pending candidate into a canonical entity,
// optionally merging it into an existing one as a variant.
func (e *Engine) AcceptCandidate(candidateID, mergeInto int64) (*store.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DB.AcceptCandidate(candidateID, mergeInto)
}

// RejectCandidate marks a pending candidate rejected.
func (e *Engine) RejectCandidate(candidateID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.DB.RejectCandidate(candidateID)
}

// Reannotate replaces a segment's derived annotations and rebuilds its
// outgoing edges against the current graph.
func (e *Engine) Reannotate(seg *store.Segment) error {
	if err := validateBounds(seg); err != nil {
		return err
	}
	normalizeLists(seg)

	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.DB.GetSegment(seg.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return apperrors.NewNotFound("segment", seg.ID)
	}

	// Identity fields are immutable; carry them over from the stored row.
	seg.Timestamp = current.Timestamp
	seg.TimestampEpoch = current.TimestampEpoch
	seg.TokenStart = current.TokenStart
	seg.TokenEnd = current.TokenEnd
	seg.SourceFile = current.SourceFile
	seg.SourceNature = current.SourceNature
	seg.SourceOrigin = current.SourceOrigin
	seg.Author = current.Author

	if err := e.DB.UpdateSegmentDerived(seg); err != nil {
		return err
	}
	if err := e.deriveEdges(seg); err != nil {
		return fmt.Errorf("rederive edges for segment %d: %w", seg.ID, err)
	}
	e.stageCandidates(seg)
	return nil
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
