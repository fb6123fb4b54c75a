package api

import (
	"encoding/json"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/orchestrator"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

// Server exposes the coordinator over HTTP. It is the transport the
// orchestrating side talks to when the agent runs as a background service.
type Server struct {
	router      chi.Router
	coordinator *orchestrator.Coordinator
	world       *kb.Store
	templates   *template.Library
}

func NewServer(coordinator *orchestrator.Coordinator, world *kb.Store, templates *template.Library) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		coordinator: coordinator,
		world:       world,
		templates:   templates,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Post("/api/ask", s.handleAsk)
	s.router.Post("/api/ask/batch", s.handleAskBatch)
	s.router.Get("/api/worldmodel", s.handleWorldModel)
	s.router.Get("/api/health", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type askRequest struct {
	Question string `json:"question"`
}

type batchRequest struct {
	Questions []string `json:"questions"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}
	resp := s.coordinator.ProcessQuestion(r.Context(), req.Question)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAskBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "questions required")
		return
	}
	responses := s.coordinator.ProcessQuestions(r.Context(), req.Questions)
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (s *Server) handleWorldModel(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"facts":      s.world.Facts(),
		"join_paths": s.world.JoinPaths(),
	}
	if s.templates != nil {
		payload["template_successes"] = s.templates.Successes()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	entries := common.LogEntries()
	const recentLimit = 20
	if len(entries) > recentLimit {
		entries = entries[len(entries)-recentLimit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"recent_logs": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.Logger().Error("api: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
