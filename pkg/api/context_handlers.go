package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/rbac"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// contextScope takes every level from the query string
var contextScope = rbac.ScopeDescriptor{
	Operation: "context.get",
	Query: map[tenancy.Level]string{
		tenancy.LevelAccount:    "account_id",
		tenancy.LevelWorkspace:  "workspace_id",
		tenancy.LevelDepartment: "department_id",
		tenancy.LevelTeam:       "team_id",
	},
}

// ContextHandlers exposes tenant context resolution
type ContextHandlers struct {
	resolver rbac.ContextResolver
}

// NewContextHandlers creates ContextHandlers
func NewContextHandlers(resolver rbac.ContextResolver) *ContextHandlers {
	return &ContextHandlers{resolver: resolver}
}

// RegisterRoutes registers context routes
func (h *ContextHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/context", h.GetContext).Methods(http.MethodGet)
}

// ContextResponse is the body of GET /v1/context
type ContextResponse struct {
	Principal tenancy.Principal      `json:"principal"`
	Context   *tenancy.TenantContext `json:"context"`
}

// GetContext resolves the declared ids for the caller. A user must hold a
// role somewhere in the resolved chain; otherwise the chain is reported as
// not found so foreign ids cannot be mapped to their parents. Roles the
// caller does not hold are left empty.
func (h *ContextHandlers) GetContext(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	tc, err := h.resolver.Resolve(r.Context(), p, contextScope.Declared(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if level, ok := tc.Deepest(); ok && !p.IsPlatformOwner() && !tc.HoldsRole() {
		httputil.WriteDomainError(w, &tenancy.NotFoundError{Level: level, ID: tc.EntityID(level)})
		return
	}
	_ = httputil.WriteSuccess(w, ContextResponse{Principal: p, Context: tc})
}
