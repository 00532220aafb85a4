package api

import (
	"fmt"
	"net/http"

	"github.com/okian/boostcalc/internal/domain/cohort"
	"github.com/okian/boostcalc/pkg/logger"
)

// handleAnalytics handles GET /api/analytics?test=true&format=json|csv.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "unknown_format", fmt.Errorf("%w: %q", ErrUnknownFormat, format))
		return
	}

	report, err := s.deps.CohortReport(r.Context(), queryBool(r, "test"))
	if err != nil {
		s.logger.Error(r.Context(), "cohort report failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to generate analytics. Please try again later.",
			Code:    "internal_error",
			Details: s.details(err),
		})
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cohort-%s.csv"`, report.GeneratedAt.Format("2006-01-02")))
		w.WriteHeader(http.StatusOK)
		if err := cohort.WriteCSV(w, report.Participants); err != nil {
			s.logger.Error(r.Context(), "failed to write csv", logger.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Report  any  `json:"report"`
	}{Success: true, Report: report})
}
