package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tracker/pkg/authz"
	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/transition"
)

// Dependencies wires the server. Metrics, Registry, Health and RateLimiter
// are optional.
type Dependencies struct {
	Transitions *transition.Manager
	Projects    *authz.Evaluator
	WorkLogs    *authz.WorkLogEvaluator
	Logger      *logrus.Logger
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
	Health      *observability.HealthChecker
	RateLimiter middleware.Limiter
}

// Server is the HTTP front of the membership engine
type Server struct {
	router      *mux.Router
	transitions *transition.Manager
	projects    *authz.Evaluator
	worklogs    *authz.WorkLogEvaluator
	logger      *logrus.Logger
	metrics     *observability.Metrics
	limiter     middleware.Limiter
}

// NewServer creates a server with all routes registered
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		router:      mux.NewRouter(),
		transitions: deps.Transitions,
		projects:    deps.Projects,
		worklogs:    deps.WorkLogs,
		logger:      logger,
		metrics:     deps.Metrics,
		limiter:     deps.RateLimiter,
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(observability.RecoveryMiddleware(logger))
	s.router.Use(httputil.LoggingMiddleware(logger))
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	if deps.Health != nil {
		s.router.HandleFunc("/health/live", deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", deps.Health.Readiness).Methods("GET")
	}
	if deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Registry)).Methods("GET")
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers the actor-authenticated routes
func (s *Server) setupRoutes() {
	r := s.router.NewRoute().Subrouter()
	r.Use(ActorMiddleware)
	if s.limiter != nil {
		r.Use(middleware.RateLimit(s.limiter, s.logger, s.metrics))
	}

	// Projects
	r.HandleFunc("/projects/{project_id}/access", s.projectAccess).Methods("GET")
	r.HandleFunc("/projects/{project_id}/manager", s.getManager).Methods("GET")
	r.HandleFunc("/projects/{project_id}/manager", s.appointManager).Methods("PUT")

	// Members
	r.HandleFunc("/projects/{project_id}/members", s.listMembers).Methods("GET")
	r.HandleFunc("/projects/{project_id}/available-users", s.availableUsers).Methods("GET")
	r.HandleFunc("/projects/{project_id}/members/{user_id}/role-options", s.roleOptions).Methods("GET")
	r.HandleFunc("/projects/{project_id}/members/{user_id}", s.assignRole).Methods("PUT")
	r.HandleFunc("/projects/{project_id}/members/{user_id}", s.removeMember).Methods("DELETE")

	// Users
	r.HandleFunc("/users/{user_id}", s.softDeleteUser).Methods("DELETE")

	// Work logs
	r.HandleFunc("/issues/{issue_id}/worklogs/check", s.checkSaveWorkLog).Methods("POST")
	r.HandleFunc("/worklogs/{worklog_id}/remove-check", s.checkRemoveWorkLog).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped with OpenTelemetry HTTP instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "tracker")
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
