package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/cache"
	"github.com/platinummonkey/tenantdesk/pkg/clock"
	"github.com/platinummonkey/tenantdesk/pkg/observability"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// Deps wires a Directory. Store, Departments and Entities are required.
type Deps struct {
	Store       Store
	Departments DepartmentCatalog
	Entities    tenancy.EntityStore
	Cache       *cache.Authority
	Clock       clock.Clock
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Directory is the cached membership read model plus its writers.
// It satisfies tenancy.MembershipStore.
type Directory struct {
	store       Store
	departments DepartmentCatalog
	entities    tenancy.EntityStore
	cache       *cache.Authority
	clock       clock.Clock
	logger      *observability.Logger
	metrics     *observability.Metrics
}

var _ tenancy.MembershipStore = (*Directory)(nil)

// NewDirectory creates a Directory
func NewDirectory(d Deps) *Directory {
	dir := &Directory{
		store:       d.Store,
		departments: d.Departments,
		entities:    d.Entities,
		cache:       d.Cache,
		clock:       d.Clock,
		logger:      d.Logger,
		metrics:     d.Metrics,
	}
	if dir.cache == nil {
		dir.cache = cache.NewAuthority(nil)
	}
	if dir.clock == nil {
		dir.clock = clock.Real()
	}
	if dir.logger == nil {
		dir.logger = observability.Nop()
	}
	return dir
}

// FindActive returns the active membership at level. Department rows are
// read through departmentRole:{subject}:{department}; absence is cached
// too, so a new membership may take up to one TTL to be seen.
func (d *Directory) FindActive(ctx context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error) {
	if level != tenancy.LevelDepartment {
		return d.store.FindActive(ctx, subjectID, entityID, level)
	}
	m, err := d.departmentMembership(ctx, subjectID, entityID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, tenancy.ErrMembershipNotFound
	}
	return m, nil
}

func (d *Directory) departmentMembership(ctx context.Context, subjectID, departmentID string) (*tenancy.Membership, error) {
	return cache.Fetch(ctx, d.cache, cache.KindDepartmentRole, cache.DepartmentRoleKey(subjectID, departmentID),
		func(ctx context.Context) (*tenancy.Membership, error) {
			m, err := d.store.FindActive(ctx, subjectID, departmentID, tenancy.LevelDepartment)
			if errors.Is(err, tenancy.ErrMembershipNotFound) {
				return nil, nil
			}
			return m, err
		})
}

// DepartmentRole returns the subject's active role in the department, or
// "" when there is none.
func (d *Directory) DepartmentRole(ctx context.Context, subjectID, departmentID string) (tenancy.Role, error) {
	m, err := d.departmentMembership(ctx, subjectID, departmentID)
	if err != nil || m == nil {
		return "", err
	}
	return m.Role, nil
}

// IsDepartmentManager reports whether the subject manages the department
func (d *Directory) IsDepartmentManager(ctx context.Context, subjectID, departmentID string) (bool, error) {
	return cache.Fetch(ctx, d.cache, cache.KindIsDepartmentManager, cache.IsDepartmentManagerKey(subjectID, departmentID),
		func(ctx context.Context) (bool, error) {
			m, err := d.store.FindActive(ctx, subjectID, departmentID, tenancy.LevelDepartment)
			if errors.Is(err, tenancy.ErrMembershipNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return m.Role == tenancy.RoleManager, nil
		})
}

// IsDepartmentMember reports whether the subject holds any active role in
// the department.
func (d *Directory) IsDepartmentMember(ctx context.Context, subjectID, departmentID string) (bool, error) {
	return cache.Fetch(ctx, d.cache, cache.KindIsDepartmentMember, cache.IsDepartmentMemberKey(subjectID, departmentID),
		func(ctx context.Context) (bool, error) {
			_, err := d.store.FindActive(ctx, subjectID, departmentID, tenancy.LevelDepartment)
			if errors.Is(err, tenancy.ErrMembershipNotFound) {
				return false, nil
			}
			return err == nil, err
		})
}

// DepartmentUsers lists the department's active memberships
func (d *Directory) DepartmentUsers(ctx context.Context, departmentID string) ([]tenancy.Membership, error) {
	users, err := cache.FetchVersioned(ctx, d.cache, cache.KindDepartmentUsers, cache.DepartmentEpochKey(departmentID),
		func(epoch int64) string { return cache.DepartmentUsersKey(departmentID, epoch) },
		func(ctx context.Context) ([]tenancy.Membership, error) {
			return d.store.ListMembers(ctx, departmentID, tenancy.LevelDepartment)
		})
	if err != nil {
		return nil, fmt.Errorf("list users of department %s: %w", departmentID, err)
	}
	if users == nil {
		users = []tenancy.Membership{}
	}
	return users, nil
}

// Department returns the department with its member counts
func (d *Directory) Department(ctx context.Context, departmentID string) (*DepartmentSummary, error) {
	return cache.FetchVersioned(ctx, d.cache, cache.KindDepartment, cache.DepartmentEpochKey(departmentID),
		func(epoch int64) string { return cache.DepartmentKey(departmentID, epoch) },
		func(ctx context.Context) (*DepartmentSummary, error) {
			dept, err := d.departments.Department(ctx, departmentID)
			if err != nil {
				return nil, err
			}
			return d.summarize(ctx, *dept)
		})
}

// WorkspaceDepartments returns every department of the workspace with
// member counts.
func (d *Directory) WorkspaceDepartments(ctx context.Context, workspaceID string) ([]DepartmentSummary, error) {
	list, err := cache.FetchVersioned(ctx, d.cache, cache.KindWorkspaceDepartments, cache.WorkspaceDepartmentsEpochKey(workspaceID),
		func(epoch int64) string { return cache.WorkspaceDepartmentsKey(workspaceID, epoch) },
		func(ctx context.Context) ([]DepartmentSummary, error) {
			depts, err := d.departments.DepartmentsByWorkspace(ctx, workspaceID)
			if err != nil {
				return nil, err
			}
			out := make([]DepartmentSummary, 0, len(depts))
			for _, dept := range depts {
				s, err := d.summarize(ctx, dept)
				if err != nil {
					return nil, err
				}
				out = append(out, *s)
			}
			return out, nil
		})
	if err != nil {
		return nil, fmt.Errorf("list departments of workspace %s: %w", workspaceID, err)
	}
	return list, nil
}

func (d *Directory) summarize(ctx context.Context, dept Department) (*DepartmentSummary, error) {
	rows, err := d.store.ListMembers(ctx, dept.ID, tenancy.LevelDepartment)
	if err != nil {
		return nil, err
	}
	s := &DepartmentSummary{Department: dept, Members: len(rows)}
	for _, m := range rows {
		if m.Role == tenancy.RoleManager {
			s.Managers++
		}
	}
	return s, nil
}

// Membership returns the row in any status, uncached
func (d *Directory) Membership(ctx context.Context, level tenancy.Level, entityID, subjectID string) (*tenancy.Membership, error) {
	m, err := d.store.GetMembership(ctx, subjectID, entityID, level)
	if err != nil {
		return nil, fmt.Errorf("get %s membership: %w", level, err)
	}
	return m, nil
}

// Invite records an Invited membership. Invited rows never authorize.
func (d *Directory) Invite(ctx context.Context, level tenancy.Level, entityID, subjectID string, role tenancy.Role) (*tenancy.Membership, error) {
	return d.insert(ctx, level, entityID, subjectID, role, tenancy.MembershipInvited)
}

// Add records an Active membership directly
func (d *Directory) Add(ctx context.Context, level tenancy.Level, entityID, subjectID string, role tenancy.Role) (*tenancy.Membership, error) {
	return d.insert(ctx, level, entityID, subjectID, role, tenancy.MembershipActive)
}

func (d *Directory) insert(ctx context.Context, level tenancy.Level, entityID, subjectID string, role tenancy.Role, status tenancy.MembershipStatus) (*tenancy.Membership, error) {
	if !tenancy.ValidRole(level, role) {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidRole, level, role)
	}
	if subjectID == "" {
		return nil, fmt.Errorf("add %s membership: empty subject id", level)
	}
	if err := d.entityExists(ctx, level, entityID); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	m := &tenancy.Membership{
		SubjectID: subjectID,
		EntityID:  entityID,
		Level:     level,
		Role:      role,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.InsertMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("insert %s membership: %w", level, err)
	}
	d.invalidate(ctx, level, entityID)
	d.log(ctx, "membership added", m)
	return m, nil
}

// Activate turns an Invited membership Active
func (d *Directory) Activate(ctx context.Context, level tenancy.Level, entityID, subjectID string) (*tenancy.Membership, error) {
	m, err := d.store.SetMembershipStatus(ctx, subjectID, entityID, level, tenancy.MembershipActive, d.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("activate %s membership: %w", level, err)
	}
	d.invalidate(ctx, level, entityID)
	d.log(ctx, "membership activated", m)
	return m, nil
}

// UpdateRole changes the role of an existing membership
func (d *Directory) UpdateRole(ctx context.Context, level tenancy.Level, entityID, subjectID string, role tenancy.Role) (*tenancy.Membership, error) {
	if !tenancy.ValidRole(level, role) {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidRole, level, role)
	}
	m, err := d.store.SetMembershipRole(ctx, subjectID, entityID, level, role, d.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("update %s membership role: %w", level, err)
	}
	d.invalidate(ctx, level, entityID)
	d.log(ctx, "membership role updated", m)
	return m, nil
}

// Remove deletes a membership in any status
func (d *Directory) Remove(ctx context.Context, level tenancy.Level, entityID, subjectID string) error {
	if err := d.store.DeleteMembership(ctx, subjectID, entityID, level); err != nil {
		return fmt.Errorf("remove %s membership: %w", level, err)
	}
	d.invalidate(ctx, level, entityID)
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"level":      string(level),
		"entity_id":  entityID,
		"subject_id": subjectID,
	}).Info("membership removed")
	return nil
}

// SweepInvitations deletes Invited memberships older than maxAge and
// returns how many were removed.
func (d *Directory) SweepInvitations(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := d.clock.Now().Add(-maxAge)
	removed, err := d.store.DeleteInvitedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep invitations: %w", err)
	}

	seen := make(map[string]bool)
	for _, m := range removed {
		k := string(m.Level) + "/" + m.EntityID
		if seen[k] {
			continue
		}
		seen[k] = true
		d.invalidate(ctx, m.Level, m.EntityID)
	}
	if d.metrics != nil {
		d.metrics.InvitationsExpiredTotal.Add(float64(len(removed)))
	}
	if len(removed) > 0 {
		d.logger.WithFields(map[string]interface{}{
			"removed": len(removed),
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("expired invitations removed")
	}
	return len(removed), nil
}

// invalidate retires the department keys a write to entityID can stale.
// Only department-level rows feed cached reads.
func (d *Directory) invalidate(ctx context.Context, level tenancy.Level, entityID string) {
	if level != tenancy.LevelDepartment {
		return
	}
	d.cache.Retire(ctx, cache.KindDepartment, cache.DepartmentEpochKey(entityID), func(epoch int64) []string {
		return []string{cache.DepartmentKey(entityID, epoch), cache.DepartmentUsersKey(entityID, epoch)}
	})

	workspaceID, err := d.entities.ParentID(ctx, tenancy.LevelDepartment, entityID)
	if err != nil {
		observability.FromContext(ctx).WithError(err).WithField("department_id", entityID).
			Warn("could not find workspace of department; workspace listing left to expire")
		return
	}
	d.cache.Retire(ctx, cache.KindWorkspaceDepartments, cache.WorkspaceDepartmentsEpochKey(workspaceID), func(epoch int64) []string {
		return []string{cache.WorkspaceDepartmentsKey(workspaceID, epoch)}
	})
}

func (d *Directory) entityExists(ctx context.Context, level tenancy.Level, entityID string) error {
	var err error
	switch level {
	case tenancy.LevelAccount:
		_, err = d.entities.AccountOwnerID(ctx, entityID)
	case tenancy.LevelWorkspace, tenancy.LevelDepartment, tenancy.LevelTeam:
		_, err = d.entities.ParentID(ctx, level, entityID)
	default:
		return fmt.Errorf("unknown level %q", level)
	}
	if errors.Is(err, tenancy.ErrEntityNotFound) {
		return &tenancy.NotFoundError{Level: level, ID: entityID}
	}
	return err
}

func (d *Directory) log(ctx context.Context, msg string, m *tenancy.Membership) {
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"level":      string(m.Level),
		"entity_id":  m.EntityID,
		"subject_id": m.SubjectID,
		"role":       string(m.Role),
		"status":     string(m.Status),
	}).Info(msg)
}
