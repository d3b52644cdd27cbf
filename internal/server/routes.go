package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jhatier/mnemo/internal/engine"
	apperrors "github.com/jhatier/mnemo/internal/errors"
	"github.com/jhatier/mnemo/internal/store"
)

func (s *Server) handlePutSegment(w http.ResponseWriter, r *http.Request) {
	var seg store.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	result, err := s.engine.PutSegment(&seg)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) handlePutSegments(w http.ResponseWriter, r *http.Request) {
	var segs []store.Segment
	if err := json.NewDecoder(r.Body).Decode(&segs); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	result := s.engine.PutSegments(segs)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("segment id must be numeric"))
		return
	}

	seg, err := s.db.GetSegment(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if seg == nil {
		writeError(w, apperrors.NewNotFound("segment", id))
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleReannotate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("segment id must be numeric"))
		return
	}

	var seg store.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}
	seg.ID = id

	if err := s.engine.Reannotate(&seg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleGetEdges(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("segment id must be numeric"))
		return
	}

	edgeType := r.URL.Query().Get("type")
	edges, err := s.db.EdgesFrom(id, edgeType)
	if err != nil {
		writeError(w, err)
		return
	}
	if edges == nil {
		edges = []store.Edge{}
	}
	writeJSON(w, http.StatusOK, edges)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := engine.SearchFilters{
		Author:   q.Get("author"),
		Origin:   q.Get("origin"),
		Tags:     splitParam(q.Get("tags")),
		People:   splitParam(q.Get("people")),
		Projects: splitParam(q.Get("projects")),
	}
	if v := q.Get("since"); v != "" {
		filters.Since, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("until"); v != "" {
		filters.Until, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("group"); v != "" {
		g, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			filters.GroupID = &g
		}
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	profile, results, err := s.engine.Search(q.Get("q"), filters, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"results": results,
	})
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = store.CandidatePending
	}
	if status == "all" {
		status = ""
	}

	candidates, err := s.db.ListCandidates(status, r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []store.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) handleAcceptCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "candidateID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("candidate id must be numeric"))
		return
	}

	var req struct {
		MergeInto int64 `json:"merge_into"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.NewValidation("invalid json"))
			return
		}
	}

	entity, err := s.engine.AcceptCandidate(id, req.MergeInto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleRejectCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "candidateID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("candidate id must be numeric"))
		return
	}

	if err := s.engine.RejectCandidate(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = store.KindPerson
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	entities, err := s.db.ListEntities(kind, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if entities == nil {
		entities = []store.Entity{}
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var e store.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}
	e.Active = true

	if err := s.db.CreateEntity(&e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleAddVariant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("entity id must be numeric"))
		return
	}

	var req struct {
		Variant string `json:"variant"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	if err := s.db.AddVariant(id, req.Variant); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetParent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("entity id must be numeric"))
		return
	}

	var req struct {
		ParentID int64 `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	if err := s.db.SetProjectParent(id, req.ParentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProjectTree(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("entity id must be numeric"))
		return
	}

	tree, err := s.db.ProjectTree(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleListPillars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minImportance := 0
	if v := q.Get("min_importance"); v != "" {
		minImportance, _ = strconv.Atoi(v)
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	pillars, err := s.db.ListPillars(q.Get("category"), minImportance, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if pillars == nil {
		pillars = []store.Pillar{}
	}
	writeJSON(w, http.StatusOK, pillars)
}

func (s *Server) handleCreatePillar(w http.ResponseWriter, r *http.Request) {
	var p store.Pillar
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	if err := s.db.CreatePillar(&p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePillarImportance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "pillarID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.NewValidation("pillar id must be numeric"))
		return
	}

	var req struct {
		Importance int `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	if err := s.db.UpdatePillarImportance(id, req.Importance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	docs, err := s.db.ListDocuments(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURI string        `json:"source_uri"`
		Title     string        `json:"title"`
		Chunks    []store.Chunk `json:"chunks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.NewValidation("invalid json"))
		return
	}

	doc := &store.Document{SourceURI: req.SourceURI, Title: req.Title}
	if err := s.db.CreateDocument(doc, req.Chunks); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleSearchChunks(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	matches, err := s.db.SearchChunks(r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if matches == nil {
		matches = []store.ChunkMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentID")

	doc, chunks, err := s.db.GetDocument(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		writeError(w, apperrors.NewNotFound("document", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"chunks":   chunks,
	})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	updated, err := s.engine.DecayMnemonicWeights(nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	repaired, err := s.db.RepairIndex()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"repaired": repaired})
}

func (s *Server) handleDupes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("delete") == "true" {
		removed, err := s.db.DeleteDuplicateSegments()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
		return
	}

	groups, err := s.db.FindDuplicateSegments()
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []store.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	missing, orphans, err := s.db.VerifyIndex()
	if err != nil {
		writeError(w, err)
		return
	}
	if missing == nil {
		missing = []int64{}
	}
	if orphans == nil {
		orphans = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"missing": missing,
		"orphans": orphans,
	})
}
