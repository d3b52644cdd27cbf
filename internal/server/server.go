package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jhatier/mnemo/internal/engine"
	apperrors "github.com/jhatier/mnemo/internal/errors"
	"github.com/jhatier/mnemo/internal/store"
)

// Server is the mnemo HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given store, engine, and version string.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/segments", s.handlePutSegment)
		r.Post("/segments/batch", s.handlePutSegments)
		r.Get("/segments/{segmentID}", s.handleGetSegment)
		r.Put("/segments/{segmentID}/annotations", s.handleReannotate)
		r.Get("/segments/{segmentID}/edges", s.handleGetEdges)

		r.Get("/search", s.handleSearch)

		r.Get("/candidates", s.handleListCandidates)
		r.Post("/candidates/{candidateID}/accept", s.handleAcceptCandidate)
		r.Post("/candidates/{candidateID}/reject", s.handleRejectCandidate)

		r.Get("/entities", s.handleListEntities)
		r.Post("/entities", s.handleCreateEntity)
		r.Post("/entities/{entityID}/variants", s.handleAddVariant)
		r.Post("/entities/{entityID}/parent", s.handleSetParent)
		r.Get("/entities/{entityID}/tree", s.handleProjectTree)

		r.Get("/pillars", s.handleListPillars)
		r.Post("/pillars", s.handleCreatePillar)
		r.Put("/pillars/{pillarID}/importance", s.handlePillarImportance)

		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleCreateDocument)
		r.Get("/documents/search", s.handleSearchChunks)
		r.Get("/documents/{documentID}", s.handleGetDocument)

		r.Post("/maintenance/decay", s.handleDecay)
		r.Post("/maintenance/repair", s.handleRepair)
		r.Post("/maintenance/dupes", s.handleDupes)
		r.Get("/maintenance/verify", s.handleVerify)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	segments, _ := s.db.CountSegments()
	edges, _ := s.db.CountEdges("")
	pending, _ := s.db.PendingRepairs()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"uptime":          time.Since(s.started).Seconds(),
		"db":              dbOK,
		"db_path":         s.db.Path,
		"segments":        segments,
		"edges":           edges,
		"pending_repairs": pending,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.StatusOf(err)
	body := map[string]any{"error": err.Error()}
	if se, ok := err.(*apperrors.StoreError); ok {
		body["code"] = se.Code
		if len(se.Details) > 0 {
			body["details"] = se.Details
		}
	}
	writeJSON(w, status, body)
}
