// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/boostcalc/internal/adapters/repository"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/scoring"
	"github.com/okian/boostcalc/internal/domain/types"
	"github.com/okian/boostcalc/pkg/logger"
)

// EnvDevelopment enables error details in responses.
const EnvDevelopment = "development"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CalculatePoints(ctx context.Context, req types.CalculateRequest) (types.CalculateResponse, error)
	Participants(testMode bool) types.ParticipantsResponse
	EnrollmentList() repository.Document
	ScoringPolicy() scoring.Policy
	CohortReport(ctx context.Context, testMode bool) (types.CohortReport, error)
	AddParticipant(ctx context.Context, entry model.Entry) (bool, error)
	Reload(ctx context.Context) int
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps        Dependencies
	environment string
	serviceName string
	logger      logger.Logger
	validate    *Validator
	adminToken  string

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithEnvironment sets the deployment environment. Error details are only
// returned in EnvDevelopment.
func WithEnvironment(env string) Option {
	return func(s *Server) {
		s.environment = env
	}
}

// WithServiceName sets the name reported by /health.
func WithServiceName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// WithAdminToken enables the /api/admin routes behind token. Without it they are not mounted.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = strings.TrimSpace(token)
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:        deps,
		serviceName: "Cloud Skills Boost Calculator",
		validate:    NewValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler(s.serviceName)
	s.statsHandler = NewStatsHandler(deps)
	return s
}

// Router returns a chi router with the middleware stack and every route.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware)
	r.Use(MetricsMiddleware)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.healthHandler.HandleHealth)
	r.Get("/healthz", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/api", func(r chi.Router) {
		r.Post("/calculate-points", s.handleCalculatePoints)
		r.Get("/participants", s.handleParticipants)
		r.Get("/enrollment-list", s.handleEnrollmentList)
		r.Get("/scoring-config", s.handleScoringConfig)
		r.Get("/analytics", s.handleAnalytics)

		if s.adminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminAuth(s.adminToken))
				r.Post("/participants", s.handleAddParticipant)
				r.Post("/reload", s.handleReload)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Endpoint not found", Code: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Code: "method_not_allowed"})
	})
}

type errorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Code     string `json:"code"`
	Enrolled *bool  `json:"enrolled,omitempty"`
	Details  string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// details returns err's text in development and nothing elsewhere.
func (s *Server) details(err error) string {
	if s.environment != EnvDevelopment || err == nil {
		return ""
	}
	return err.Error()
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "true", "1", "yes":
		return true
	}
	return false
}
