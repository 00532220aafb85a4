package api

import (
	"net/http"

	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/scoring"
)

// handleParticipants handles GET /api/participants?test=true.
func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Participants(queryBool(r, "test")))
}

type enrollmentListResponse struct {
	Success      bool          `json:"success"`
	Count        int           `json:"count"`
	LastUpdated  string        `json:"lastUpdated,omitempty"`
	Participants []model.Entry `json:"participants"`
}

// handleEnrollmentList handles GET /api/enrollment-list.
func (s *Server) handleEnrollmentList(w http.ResponseWriter, _ *http.Request) {
	doc := s.deps.EnrollmentList()
	entries := doc.Participants
	if entries == nil {
		entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, enrollmentListResponse{
		Success:      true,
		Count:        len(entries),
		LastUpdated:  doc.LastUpdated,
		Participants: entries,
	})
}

type scoringConfigResponse struct {
	Success bool           `json:"success"`
	Config  scoring.Policy `json:"config"`
}

// handleScoringConfig handles GET /api/scoring-config.
func (s *Server) handleScoringConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scoringConfigResponse{Success: true, Config: s.deps.ScoringPolicy()})
}
