package membership

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

var (
	// ErrMembershipExists means a row for (subject, entity, level) is already present.
	ErrMembershipExists = errors.New("membership already exists")

	// ErrInvalidRole means the role is outside the level's role domain.
	ErrInvalidRole = errors.New("invalid role for level")
)

// Department is a department entity as stored
type Department struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// DepartmentSummary is a department with its active member counts
type DepartmentSummary struct {
	Department
	Members  int `json:"members"`
	Managers int `json:"managers"`
}

// Store persists membership rows at every level
type Store interface {
	tenancy.MembershipStore

	// GetMembership returns the row in any status, or ErrMembershipNotFound.
	GetMembership(ctx context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error)

	// InsertMembership adds a new row, or fails with ErrMembershipExists.
	InsertMembership(ctx context.Context, m *tenancy.Membership) error

	// SetMembershipRole and SetMembershipStatus update an existing row or
	// fail with ErrMembershipNotFound.
	SetMembershipRole(ctx context.Context, subjectID, entityID string, level tenancy.Level, role tenancy.Role, at time.Time) (*tenancy.Membership, error)
	SetMembershipStatus(ctx context.Context, subjectID, entityID string, level tenancy.Level, status tenancy.MembershipStatus, at time.Time) (*tenancy.Membership, error)

	DeleteMembership(ctx context.Context, subjectID, entityID string, level tenancy.Level) error

	// ListMembers returns active rows of entityID ordered by subject id.
	ListMembers(ctx context.Context, entityID string, level tenancy.Level) ([]tenancy.Membership, error)

	// DeleteInvitedBefore removes Invited rows created before cutoff and
	// returns them.
	DeleteInvitedBefore(ctx context.Context, cutoff time.Time) ([]tenancy.Membership, error)
}

// DepartmentCatalog reads department entities
type DepartmentCatalog interface {
	Department(ctx context.Context, id string) (*Department, error)
	DepartmentsByWorkspace(ctx context.Context, workspaceID string) ([]Department, error)
}
