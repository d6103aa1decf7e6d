package rbac

import (
	"strings"

	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// RequiredRole names a role an operation accepts. Requirements are
// evaluated with OR semantics.
type RequiredRole string

const (
	// PlatformOwner is a marker; only platform owners satisfy it.
	PlatformOwner RequiredRole = "platform_owner"

	AccountAdmin      RequiredRole = "account_admin"
	AccountMember     RequiredRole = "account_member"
	WorkspaceAdmin    RequiredRole = "workspace_admin"
	WorkspaceMember   RequiredRole = "workspace_member"
	DepartmentManager RequiredRole = "department_manager"
	HumanSupport      RequiredRole = "human_support"
	DepartmentMember  RequiredRole = "department_member"
	TeamLead          RequiredRole = "team_lead"
	TeamMember        RequiredRole = "team_member"
)

// Requirement is the set of roles an operation accepts
type Requirement map[RequiredRole]struct{}

// Require builds a Requirement from roles
func Require(roles ...RequiredRole) Requirement {
	req := make(Requirement, len(roles))
	for _, r := range roles {
		req[r] = struct{}{}
	}
	return req
}

// Has reports whether role is in the requirement
func (r Requirement) Has(role RequiredRole) bool {
	_, ok := r[role]
	return ok
}

// HasAny reports whether any of roles is in the requirement
func (r Requirement) HasAny(roles ...RequiredRole) bool {
	for _, role := range roles {
		if r.Has(role) {
			return true
		}
	}
	return false
}

// String renders the requirement in declaration-independent order
func (r Requirement) String() string {
	names := make([]string, 0, len(r))
	for _, role := range allRoles {
		if r.Has(role) {
			names = append(names, string(role))
		}
	}
	return strings.Join(names, "|")
}

var allRoles = []RequiredRole{
	PlatformOwner, AccountAdmin, AccountMember, WorkspaceAdmin, WorkspaceMember,
	DepartmentManager, HumanSupport, DepartmentMember, TeamLead, TeamMember,
}

var departmentRoles = []RequiredRole{DepartmentManager, HumanSupport, DepartmentMember}

// Rule identifies which evaluation step produced a decision
type Rule string

const (
	RulePlatformOwner   Rule = "platform_owner"
	RuleAccountAdmin    Rule = "account_admin"
	RuleAccountMember   Rule = "account_member"
	RuleWorkspaceAdmin  Rule = "workspace_admin"
	RuleWorkspaceMember Rule = "workspace_member"
	RuleElevation       Rule = "elevation"
	RuleDepartmentRole  Rule = "department_role"
	RuleTeamRole        Rule = "team_role"
	RuleDenied          Rule = "denied"
)

// Decision is the outcome of Authorize
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    Rule   `json:"rule"`
	Reason  string `json:"reason,omitempty"`
}

// Err returns nil for an allow and an error wrapping
// tenancy.ErrInsufficientPermissions for a deny.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError carries the internal deny reason. The HTTP layer never
// exposes it; responses are a uniform "forbidden".
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return tenancy.ErrInsufficientPermissions.Error() + ": " + e.Reason
}

func (e *DeniedError) Unwrap() error { return tenancy.ErrInsufficientPermissions }
