package rbac

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantdesk/pkg/httputil"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// ContextResolver is satisfied by *tenancy.Resolver
type ContextResolver interface {
	Resolve(ctx context.Context, p tenancy.Principal, d tenancy.Declared) (*tenancy.TenantContext, error)
}

// ScopeDescriptor is declared once per operation at route registration. It
// names where each scope id may come from; nothing is inferred from the
// request path at runtime.
type ScopeDescriptor struct {
	Operation string

	// Path maps a level to the mux variable carrying its id.
	Path map[tenancy.Level]string

	// Query maps a level to the query parameter carrying its id.
	Query map[tenancy.Level]string

	// Body allows account_id/workspace_id/department_id/team_id fields in a
	// JSON body to fill levels not declared elsewhere.
	Body bool

	Required Requirement
}

type bodyScope struct {
	AccountID    string `json:"account_id"`
	WorkspaceID  string `json:"workspace_id"`
	DepartmentID string `json:"department_id"`
	TeamID       string `json:"team_id"`
}

// Declared collects the declared ids from r in precedence order: a
// previously verified context, then path, query, body.
func (sd ScopeDescriptor) Declared(r *http.Request) tenancy.Declared {
	var src tenancy.Sources

	if tc := tenancy.TenantContextFrom(r.Context()); tc != nil {
		src.Verified = tc.Declared()
	}

	vars := mux.Vars(r)
	for level, name := range sd.Path {
		setLevel(&src.Path, level, vars[name])
	}

	q := r.URL.Query()
	for level, name := range sd.Query {
		setLevel(&src.Query, level, q.Get(name))
	}

	if sd.Body {
		var b bodyScope
		if err := httputil.PeekJSON(r, &b); err == nil {
			src.Body = tenancy.Declared{
				AccountID:    b.AccountID,
				WorkspaceID:  b.WorkspaceID,
				DepartmentID: b.DepartmentID,
				TeamID:       b.TeamID,
			}
		}
	}

	return src.Merge()
}

func setLevel(d *tenancy.Declared, level tenancy.Level, id string) {
	switch level {
	case tenancy.LevelAccount:
		d.AccountID = id
	case tenancy.LevelWorkspace:
		d.WorkspaceID = id
	case tenancy.LevelDepartment:
		d.DepartmentID = id
	case tenancy.LevelTeam:
		d.TeamID = id
	}
}

// Guard resolves and authorizes a request before the handler runs
type Guard struct {
	resolver   ContextResolver
	authorizer *Authorizer
}

// NewGuard creates a Guard
func NewGuard(resolver ContextResolver, authorizer *Authorizer) *Guard {
	return &Guard{resolver: resolver, authorizer: authorizer}
}

// Check resolves d for p and evaluates required. Denials come back as an
// error wrapping tenancy.ErrInsufficientPermissions.
func (g *Guard) Check(ctx context.Context, p tenancy.Principal, d tenancy.Declared, required Requirement) (*tenancy.TenantContext, error) {
	tc, err := g.resolve(ctx, p, d)
	if err != nil {
		return nil, err
	}
	if err := g.authorizer.Authorize(p, tc, required).Err(); err != nil {
		return nil, err
	}
	return tc, nil
}

func (g *Guard) resolve(ctx context.Context, p tenancy.Principal, d tenancy.Declared) (*tenancy.TenantContext, error) {
	start := time.Now()
	tc, err := g.resolver.Resolve(ctx, p, d)
	g.observeResolution(time.Since(start), err)
	return tc, err
}

func (g *Guard) observeResolution(elapsed time.Duration, err error) {
	if g.authorizer == nil || g.authorizer.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, tenancy.ErrEntityNotFound):
		outcome = "not_found"
	case errors.Is(err, tenancy.ErrScopeMismatch):
		outcome = "scope_mismatch"
	case err != nil:
		outcome = "error"
	}
	g.authorizer.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	g.authorizer.metrics.ResolutionDuration.Observe(elapsed.Seconds())
}

// Protect wraps next so it only runs for principals satisfying desc. The
// verified TenantContext is stored on the request context.
func (g *Guard) Protect(desc ScopeDescriptor, next http.Handler) http.Handler {
	return g.protect(desc, next, true)
}

// ProtectResolved verifies the containment of desc's ids but evaluates no
// role; desc.Required is ignored. next must authorize the caller itself,
// e.g. against the caller's own pending membership.
func (g *Guard) ProtectResolved(desc ScopeDescriptor, next http.Handler) http.Handler {
	return g.protect(desc, next, false)
}

func (g *Guard) protect(desc ScopeDescriptor, next http.Handler, authorize bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := tenancy.PrincipalFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		var tc *tenancy.TenantContext
		var err error
		if authorize {
			tc, err = g.Check(r.Context(), p, desc.Declared(r), desc.Required)
		} else {
			tc, err = g.resolve(r.Context(), p, desc.Declared(r))
		}
		if err != nil {
			observability.FromContext(r.Context()).
				WithError(err).
				WithField("operation", desc.Operation).
				Debug("request rejected by guard")
			httputil.WriteDomainError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(tenancy.WithTenantContext(r.Context(), tc)))
	})
}

// ProtectFunc is Protect for a HandlerFunc
func (g *Guard) ProtectFunc(desc ScopeDescriptor, fn http.HandlerFunc) http.Handler {
	return g.Protect(desc, fn)
}
