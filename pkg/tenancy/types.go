package tenancy

import (
	"fmt"
	"time"
)

// PrincipalKind distinguishes platform owners from regular users
type PrincipalKind string

const (
	PrincipalUser          PrincipalKind = "user"
	PrincipalPlatformOwner PrincipalKind = "platform_owner"
)

// Principal is the authenticated caller
type Principal struct {
	ID    string        `json:"id"`
	Kind  PrincipalKind `json:"kind"`
	Email string        `json:"email,omitempty"`
}

// IsPlatformOwner reports whether the principal owns accounts directly
// rather than through membership rows.
func (p Principal) IsPlatformOwner() bool {
	return p.Kind == PrincipalPlatformOwner
}

// Level is one rung of the containment hierarchy
type Level string

const (
	LevelAccount    Level = "account"
	LevelWorkspace  Level = "workspace"
	LevelDepartment Level = "department"
	LevelTeam       Level = "team"
)

// Levels lists the hierarchy from the top down.
var Levels = []Level{LevelAccount, LevelWorkspace, LevelDepartment, LevelTeam}

// Parent returns the level directly above l. Account has no parent.
func (l Level) Parent() (Level, bool) {
	switch l {
	case LevelWorkspace:
		return LevelAccount, true
	case LevelDepartment:
		return LevelWorkspace, true
	case LevelTeam:
		return LevelDepartment, true
	default:
		return "", false
	}
}

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	switch l {
	case LevelAccount, LevelWorkspace, LevelDepartment, LevelTeam:
		return true
	}
	return false
}

// Role is a membership role. Each level accepts its own subset.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleMember       Role = "member"
	RoleManager      Role = "manager"
	RoleHumanSupport Role = "human_support"
	RoleLead         Role = "lead"
)

var levelRoles = map[Level][]Role{
	LevelAccount:    {RoleAdmin, RoleMember},
	LevelWorkspace:  {RoleAdmin, RoleMember},
	LevelDepartment: {RoleManager, RoleHumanSupport, RoleMember},
	LevelTeam:       {RoleLead, RoleMember},
}

// ValidRole reports whether role belongs to the role domain of level
func ValidRole(level Level, role Role) bool {
	for _, r := range levelRoles[level] {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole validates a role string against a level's domain
func ParseRole(level Level, s string) (Role, error) {
	role := Role(s)
	if !ValidRole(level, role) {
		return "", fmt.Errorf("invalid %s role: %q", level, s)
	}
	return role, nil
}

// topRole is the virtual role granted to platform owners at each level.
var topRole = map[Level]Role{
	LevelAccount:    RoleAdmin,
	LevelWorkspace:  RoleAdmin,
	LevelDepartment: RoleManager,
	LevelTeam:       RoleLead,
}

// MembershipStatus is the lifecycle state of a membership row
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipInvited MembershipStatus = "invited"
)

// Membership is a single (subject, entity) row at one level.
// Only Active memberships confer authorization.
type Membership struct {
	SubjectID string           `json:"subject_id"`
	EntityID  string           `json:"entity_id"`
	Level     Level            `json:"level"`
	Role      Role             `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership confers authorization
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipActive
}

// TenantContext is the per-request resolved scope. Every field is
// independently optional; an empty role means the principal holds no
// active membership at that level.
type TenantContext struct {
	AccountID      string `json:"account_id,omitempty"`
	AccountRole    Role   `json:"account_role,omitempty"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
	WorkspaceRole  Role   `json:"workspace_role,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	DepartmentRole Role   `json:"department_role,omitempty"`
	TeamID         string `json:"team_id,omitempty"`
	TeamRole       Role   `json:"team_role,omitempty"`
}

// EntityID returns the resolved id at level
func (tc *TenantContext) EntityID(level Level) string {
	if tc == nil {
		return ""
	}
	switch level {
	case LevelAccount:
		return tc.AccountID
	case LevelWorkspace:
		return tc.WorkspaceID
	case LevelDepartment:
		return tc.DepartmentID
	case LevelTeam:
		return tc.TeamID
	}
	return ""
}

// RoleAt returns the resolved role at level, or "" when unset
func (tc *TenantContext) RoleAt(level Level) Role {
	if tc == nil {
		return ""
	}
	switch level {
	case LevelAccount:
		return tc.AccountRole
	case LevelWorkspace:
		return tc.WorkspaceRole
	case LevelDepartment:
		return tc.DepartmentRole
	case LevelTeam:
		return tc.TeamRole
	}
	return ""
}

// Deepest returns the lowest level with a resolved id. ok is false when
// nothing was resolved.
func (tc *TenantContext) Deepest() (level Level, ok bool) {
	for i := len(Levels) - 1; i >= 0; i-- {
		if tc.EntityID(Levels[i]) != "" {
			return Levels[i], true
		}
	}
	return "", false
}

// HoldsRole reports whether the principal has a role at any resolved level
func (tc *TenantContext) HoldsRole() bool {
	for _, level := range Levels {
		if tc.RoleAt(level) != "" {
			return true
		}
	}
	return false
}

func (tc *TenantContext) setRole(level Level, role Role) {
	switch level {
	case LevelAccount:
		tc.AccountRole = role
	case LevelWorkspace:
		tc.WorkspaceRole = role
	case LevelDepartment:
		tc.DepartmentRole = role
	case LevelTeam:
		tc.TeamRole = role
	}
}

// Declared returns the context's ids as a verified declaration, for use
// as the highest-precedence source on subsequent resolutions.
func (tc *TenantContext) Declared() Declared {
	if tc == nil {
		return Declared{}
	}
	return Declared{
		AccountID:    tc.AccountID,
		WorkspaceID:  tc.WorkspaceID,
		DepartmentID: tc.DepartmentID,
		TeamID:       tc.TeamID,
	}
}
