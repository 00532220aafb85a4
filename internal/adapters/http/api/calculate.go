package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/types"
	"github.com/okian/boostcalc/pkg/logger"
)

const maxBodyBytes = 1 << 20

// handleCalculatePoints handles POST /api/calculate-points.
func (s *Server) handleCalculatePoints(w http.ResponseWriter, r *http.Request) {
	var req types.CalculateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", errors.New("Invalid JSON body"))
		return
	}

	res, err := s.deps.CalculatePoints(r.Context(), req)
	if err != nil {
		s.writeCalculateError(w, r, req, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeCalculateError(w http.ResponseWriter, r *http.Request, req types.CalculateRequest, err error) {
	status := errs.HTTPStatus(err)
	resp := errorResponse{Code: errs.Code(err)}
	notEnrolled := false
	byEmail := strings.TrimSpace(req.Email) != ""

	switch errs.KindOf(err) {
	case errs.ErrValidation:
		resp.Error = validationMessage(err)
	case errs.ErrNotEnrolled:
		resp.Enrolled = &notEnrolled
		if byEmail {
			resp.Error = "Email not found in enrolled participants list. Please check your email address or contact the program administrator."
		} else {
			resp.Error = "Profile not found in enrolled participants list. Please contact the program administrator."
		}
	case errs.ErrProfileMissing:
		resp.Enrolled = &notEnrolled
		resp.Error = "Profile URL not found for this email. Please contact the program administrator."
	case errs.ErrUpstreamFetch:
		resp.Error = "Failed to fetch the public profile. Please try again later."
		resp.Details = s.details(err)
	default:
		resp.Error = "Failed to calculate points. Please try again later."
		resp.Details = s.details(err)
	}

	if status >= http.StatusInternalServerError || errs.KindOf(err) == errs.ErrUpstreamFetch {
		s.logger.Error(r.Context(), "calculate points failed", logger.Error(err))
	}
	writeJSON(w, status, resp)
}

func validationMessage(err error) string {
	cause := errs.Cause(err)
	if cause == nil {
		return "Invalid request"
	}
	msg := cause.Error()
	return strings.ToUpper(msg[:1]) + msg[1:]
}
