package tenancy

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/tenantdesk/pkg/tenancy"

// Resolver builds TenantContexts from a principal and declared ids.
type Resolver struct {
	entities    EntityStore
	memberships MembershipStore
	tracer      trace.Tracer
}

// NewResolver creates a resolver over the given stores
func NewResolver(entities EntityStore, memberships MembershipStore) *Resolver {
	return &Resolver{
		entities:    entities,
		memberships: memberships,
		tracer:      otel.Tracer(tracerName),
	}
}

// Resolve re-derives the containment chain for d and records the
// principal's role at each resolved level.
//
// Missing membership at any level is not an error: the role is left unset
// and the authorizer decides. Resolution fails only when a declared id does
// not resolve (ErrEntityNotFound) or disagrees with its child's recorded
// parent (ErrScopeMismatch). A platform owner resolving an account it does
// not own gets ErrEntityNotFound.
func (r *Resolver) Resolve(ctx context.Context, p Principal, d Declared) (*TenantContext, error) {
	ctx, span := r.tracer.Start(ctx, "tenancy.Resolve", trace.WithAttributes(
		attribute.String("principal.kind", string(p.Kind)),
	))
	defer span.End()

	tc, err := r.resolve(ctx, p, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return tc, nil
}

func (r *Resolver) resolve(ctx context.Context, p Principal, d Declared) (*TenantContext, error) {
	chain, err := ResolveContainment(ctx, r.entities, d)
	if err != nil {
		return nil, err
	}

	tc := &TenantContext{
		AccountID:    chain.AccountID,
		WorkspaceID:  chain.WorkspaceID,
		DepartmentID: chain.DepartmentID,
		TeamID:       chain.TeamID,
	}

	if chain.AccountID == "" {
		return tc, nil
	}

	if p.IsPlatformOwner() {
		if chain.OwnerID != p.ID {
			return nil, &NotFoundError{Level: LevelAccount, ID: chain.AccountID}
		}
		for _, level := range Levels {
			if chain.ID(level) != "" {
				tc.setRole(level, topRole[level])
			}
		}
		return tc, nil
	}

	for _, level := range Levels {
		entityID := chain.ID(level)
		if entityID == "" {
			continue
		}

		m, err := r.memberships.FindActive(ctx, p.ID, entityID, level)
		if errors.Is(err, ErrMembershipNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s membership: %w", level, err)
		}
		if !m.IsActive() || !ValidRole(level, m.Role) {
			continue
		}
		tc.setRole(level, m.Role)
	}

	return tc, nil
}
