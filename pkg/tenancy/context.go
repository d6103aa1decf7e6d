package tenancy

import (
	"context"

	"github.com/platinummonkey/tenantdesk/pkg/contextkeys"
)

// WithPrincipal stores the authenticated principal on ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = contextkeys.WithSubjectID(ctx, p.ID)
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return p, ok
}

// WithTenantContext stores a verified TenantContext on ctx
func WithTenantContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, contextkeys.TenantKey, tc)
}

// TenantContextFrom returns the verified TenantContext, or nil
func TenantContextFrom(ctx context.Context) *TenantContext {
	tc, _ := ctx.Value(contextkeys.TenantKey).(*TenantContext)
	return tc
}
