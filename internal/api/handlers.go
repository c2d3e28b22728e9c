package api

import (
	"embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/n1dhiparate/admit-assist/internal/assistant"
	"github.com/n1dhiparate/admit-assist/internal/buildinfo"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

//go:embed static/index.html
var staticFS embed.FS

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 64 << 10

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	assistant.ComposedAnswer
	RequestID string `json:"request_id,omitempty"`
}

// ResetRequest is the body of POST /admin/reset. No milestones resets
// all of them.
type ResetRequest struct {
	Milestones []string `json:"milestones"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleChat never rejects a message: a body that does not decode is
// answered as an empty message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Debug("unreadable chat body, treating as empty message",
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		req = ChatRequest{}
	}

	answer := s.assist.SubmitMessage(r.Context(), s.cfg.StudentID, req.Message)

	writeJSON(w, http.StatusOK, ChatResponse{
		ComposedAnswer: answer,
		RequestID:      RequestIDFromContext(r.Context()),
	}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assist.Status(r.Context(), s.cfg.StudentID), s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assist.AggregateStats(r.Context()), s.logger)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ms := make([]onboarding.Milestone, 0, len(req.Milestones))
	for _, name := range req.Milestones {
		m, err := onboarding.ParseMilestone(name)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		ms = append(ms, m)
	}

	writeJSON(w, http.StatusOK, s.assist.Reset(r.Context(), s.cfg.StudentID, ms...), s.logger)
}

func (s *Server) handleBrochureReload(w http.ResponseWriter, r *http.Request) {
	if s.brochure == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "no brochure configured")
		return
	}
	s.brochure.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloading"}, s.logger)
}

// healthResponse is the GET /health body. A down dependency makes the
// service degraded, not unhealthy: answers still fall back.
type healthResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.dependencies != nil {
		resp.Dependencies = s.dependencies()
		for _, d := range resp.Dependencies {
			if !d.Ready {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.RuntimeInfo(), s.logger)
}
