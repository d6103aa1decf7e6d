package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/events"
	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/middleware"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

const workspacePrefix = "/accounts/{account_id}/workspaces/{workspace_id}"

// Deps wires a Server. Auth, Resolver, Guard, Conversations and Directory
// are required.
type Deps struct {
	Auth          *auth.Middleware
	Resolver      rbac.ContextResolver
	Guard         *rbac.Guard
	Conversations *conversations.StateMachine
	Directory     *membership.Directory

	// Hub serves /ws when set.
	Hub *events.Hub

	// Health serves /healthz and /readyz when set.
	Health *observability.HealthChecker

	// RateLimit applies to every /v1 request after authentication.
	RateLimit *middleware.RateLimitMiddleware

	// InboundLimit applies to inbound message ingestion.
	InboundLimit *middleware.RateLimitMiddleware

	// Registry serves /metrics when set.
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Logger   *observability.Logger
}

// Server represents our API server
type Server struct {
	router    *mux.Router
	workspace *mux.Router
	deps      Deps
}

// NewServer creates a new API server
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = observability.Nop()
	}
	s := &Server{router: mux.NewRouter(), deps: d}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware(s.deps.Logger),
	)
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	// Probes and metrics are unauthenticated
	if s.deps.Health != nil {
		s.router.HandleFunc("/healthz", s.deps.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", s.deps.Health.Readiness).Methods(http.MethodGet)
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods(http.MethodGet)
	}

	if s.deps.Hub != nil {
		stream := NewStreamHandler(s.deps.Hub, s.deps.Guard)
		s.router.Handle("/ws", s.deps.Auth.Handler(stream)).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.deps.Auth.Handler)
	if s.deps.RateLimit != nil {
		v1.Use(s.deps.RateLimit.Handler)
	}
	s.workspace = v1.PathPrefix(workspacePrefix).Subrouter()

	NewContextHandlers(s.deps.Resolver).RegisterRoutes(v1)

	convs := NewConversationHandlers(s.deps.Conversations, s.deps.Guard)
	if s.deps.InboundLimit != nil {
		convs.WithInboundLimit(s.deps.InboundLimit.Handler)
	}
	s.RegisterRoutes(convs)
	s.RegisterRoutes(NewDepartmentHandlers(s.deps.Directory, s.deps.Guard))

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers a handler group under the authenticated
// /v1/accounts/{account_id}/workspaces/{workspace_id} prefix.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.workspace)
}

// workspaceScope declares the account and workspace ids from the path
func workspaceScope(op string, required rbac.Requirement) rbac.ScopeDescriptor {
	return rbac.ScopeDescriptor{
		Operation: op,
		Path: map[tenancy.Level]string{
			tenancy.LevelAccount:   "account_id",
			tenancy.LevelWorkspace: "workspace_id",
		},
		Required: required,
	}
}

func departmentScope(op string, required rbac.Requirement) rbac.ScopeDescriptor {
	sd := workspaceScope(op, required)
	sd.Path[tenancy.LevelDepartment] = "department_id"
	return sd
}

func principal(r *http.Request) tenancy.Principal {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	return p
}
