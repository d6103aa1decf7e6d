package rbac

import (
	"fmt"
	"strconv"

	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// Authorizer evaluates a resolved TenantContext against a Requirement.
// It performs no I/O.
type Authorizer struct {
	metrics *observability.Metrics
}

// NewAuthorizer creates an Authorizer. metrics may be nil.
func NewAuthorizer(metrics *observability.Metrics) *Authorizer {
	return &Authorizer{metrics: metrics}
}

// Authorize applies the rules in fixed order; the first match wins.
func (a *Authorizer) Authorize(p tenancy.Principal, tc *tenancy.TenantContext, required Requirement) Decision {
	d := evaluate(p, tc, required)
	if a != nil && a.metrics != nil {
		a.metrics.AuthzDecisionsTotal.WithLabelValues(string(d.Rule), strconv.FormatBool(d.Allowed)).Inc()
	}
	return d
}

func allow(rule Rule) Decision {
	return Decision{Allowed: true, Rule: rule}
}

func evaluate(p tenancy.Principal, tc *tenancy.TenantContext, required Requirement) Decision {
	if tc == nil {
		tc = &tenancy.TenantContext{}
	}

	// Platform owners carry virtual top roles in tc, so member-level
	// requirements are met by the steps below.
	if p.IsPlatformOwner() && required.HasAny(AccountAdmin, PlatformOwner) {
		return allow(RulePlatformOwner)
	}

	if tc.AccountRole == tenancy.RoleAdmin && required.Has(AccountAdmin) {
		return allow(RuleAccountAdmin)
	}
	if tc.AccountRole != "" && required.Has(AccountMember) {
		return allow(RuleAccountMember)
	}
	if tc.WorkspaceRole == tenancy.RoleAdmin && required.Has(WorkspaceAdmin) {
		return allow(RuleWorkspaceAdmin)
	}
	if tc.WorkspaceRole != "" && required.Has(WorkspaceMember) {
		return allow(RuleWorkspaceMember)
	}

	// Elevation: workspace or account admins satisfy any department
	// requirement without a department membership. Must precede the
	// department check.
	if required.HasAny(departmentRoles...) &&
		(tc.WorkspaceRole == tenancy.RoleAdmin || tc.AccountRole == tenancy.RoleAdmin) {
		return allow(RuleElevation)
	}

	if tc.DepartmentRole != "" && departmentSatisfies(tc.DepartmentRole, required) {
		return allow(RuleDepartmentRole)
	}

	if tc.TeamRole != "" {
		if required.Has(TeamLead) && tc.TeamRole == tenancy.RoleLead {
			return allow(RuleTeamRole)
		}
		if required.Has(TeamMember) {
			return allow(RuleTeamRole)
		}
	}

	return Decision{
		Allowed: false,
		Rule:    RuleDenied,
		Reason:  fmt.Sprintf("requires one of %s", required),
	}
}

// departmentSatisfies: Manager needs an exact match, HumanSupport accepts
// managers too, DepartmentMember accepts any department role.
func departmentSatisfies(role tenancy.Role, required Requirement) bool {
	if required.Has(DepartmentManager) && role == tenancy.RoleManager {
		return true
	}
	if required.Has(HumanSupport) && (role == tenancy.RoleHumanSupport || role == tenancy.RoleManager) {
		return true
	}
	return required.Has(DepartmentMember)
}
