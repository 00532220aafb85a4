package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/identity"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/logger"
)

type addParticipantRequest struct {
	ProfileURL     string `json:"profileUrl" validate:"required,profileurl"`
	Email          string `json:"email" validate:"omitempty,cohortemail"`
	Name           string `json:"name" validate:"max=200"`
	Batch          string `json:"batch" validate:"max=100"`
	EnrollmentDate string `json:"enrollmentDate"`
}

type validationResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
}

type addParticipantResponse struct {
	Success   bool   `json:"success"`
	Added     bool   `json:"added"`
	ProfileID string `json:"profileId"`
	Message   string `json:"message,omitempty"`
}

// handleAddParticipant handles POST /api/admin/participants.
func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", errors.New("Invalid JSON body"))
		return
	}
	req.ProfileURL = strings.TrimSpace(req.ProfileURL)
	req.Email = strings.TrimSpace(req.Email)

	if err := s.validate.ValidateStruct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "Invalid participant",
			Code:   "validation_error",
			Fields: FormatValidationError(err),
		})
		return
	}

	p := model.Participant{
		ProfileURL: req.ProfileURL,
		Name:       strings.TrimSpace(req.Name),
		Email:      req.Email,
		Batch:      strings.TrimSpace(req.Batch),
	}
	if req.EnrollmentDate != "" {
		d, ok := parseEnrollmentDate(req.EnrollmentDate)
		if !ok {
			writeJSON(w, http.StatusBadRequest, validationResponse{
				Error:  "Invalid participant",
				Code:   "validation_error",
				Fields: map[string]string{"enrollmentDate": "Invalid date"},
			})
			return
		}
		p.EnrollmentDate = &d
	}

	added, err := s.deps.AddParticipant(r.Context(), model.StructuredEntry(p))
	if err != nil {
		if errs.KindOf(err) != errs.ErrValidation {
			s.logger.Error(r.Context(), "add participant failed", logger.Error(err))
		}
		writeJSON(w, errs.HTTPStatus(err), errorResponse{
			Error:   "Failed to add participant",
			Code:    errs.Code(err),
			Details: s.details(err),
		})
		return
	}

	id, _ := identity.ExtractProfileID(p.ProfileURL)
	if !added {
		writeJSON(w, http.StatusOK, addParticipantResponse{
			Success:   true,
			ProfileID: id,
			Message:   "Participant already enrolled",
		})
		return
	}
	writeJSON(w, http.StatusCreated, addParticipantResponse{Success: true, Added: true, ProfileID: id})
}

// handleReload handles POST /api/admin/reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Reload(r.Context())
	writeJSON(w, http.StatusOK, struct {
		Success           bool `json:"success"`
		TotalParticipants int  `json:"totalParticipants"`
	}{Success: true, TotalParticipants: n})
}

func parseEnrollmentDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
