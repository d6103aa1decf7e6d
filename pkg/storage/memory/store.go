package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/conversations"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/storage"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

type membershipKey struct {
	subjectID string
	entityID  string
	level     tenancy.Level
}

type account struct {
	name    string
	ownerID string
}

// Store is a concurrency-safe in-memory backend
type Store struct {
	mu sync.RWMutex

	users       map[string]tenancy.Principal
	accounts    map[string]account
	workspaces  map[string]string // workspace -> account
	departments map[string]membership.Department
	teams       map[string]string // team -> department

	memberships   map[membershipKey]tenancy.Membership
	conversations map[string]conversations.Conversation
	messages      map[string][]conversations.Message
}

var _ storage.Backend = (*Store)(nil)

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		users:         make(map[string]tenancy.Principal),
		accounts:      make(map[string]account),
		workspaces:    make(map[string]string),
		departments:   make(map[string]membership.Department),
		teams:         make(map[string]string),
		memberships:   make(map[membershipKey]tenancy.Membership),
		conversations: make(map[string]conversations.Conversation),
		messages:      make(map[string][]conversations.Message),
	}
}

// PutUser registers a principal
func (s *Store) PutUser(p tenancy.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Kind == "" {
		p.Kind = tenancy.PrincipalUser
	}
	s.users[p.ID] = p
}

// PutAccount registers an account owned by ownerID
func (s *Store) PutAccount(id, name, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = account{name: name, ownerID: ownerID}
}

// PutWorkspace registers a workspace under accountID
func (s *Store) PutWorkspace(id, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = accountID
}

// PutDepartment registers a department
func (s *Store) PutDepartment(d membership.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

// PutTeam registers a team under departmentID
func (s *Store) PutTeam(id, departmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[id] = departmentID
}

// ParentID returns the recorded parent of a workspace, department or team
func (s *Store) ParentID(_ context.Context, level tenancy.Level, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		parent string
		ok     bool
	)
	switch level {
	case tenancy.LevelWorkspace:
		parent, ok = s.workspaces[id]
	case tenancy.LevelDepartment:
		var d membership.Department
		d, ok = s.departments[id]
		parent = d.WorkspaceID
	case tenancy.LevelTeam:
		parent, ok = s.teams[id]
	default:
		return "", fmt.Errorf("level %q has no parent", level)
	}
	if !ok {
		return "", &tenancy.NotFoundError{Level: level, ID: id}
	}
	return parent, nil
}

// AccountOwnerID returns the account's owner
func (s *Store) AccountOwnerID(_ context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return "", &tenancy.NotFoundError{Level: tenancy.LevelAccount, ID: accountID}
	}
	return a.ownerID, nil
}

// Department returns one department
func (s *Store) Department(_ context.Context, id string) (*membership.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departments[id]
	if !ok {
		return nil, &tenancy.NotFoundError{Level: tenancy.LevelDepartment, ID: id}
	}
	return &d, nil
}

// DepartmentsByWorkspace lists departments by name
func (s *Store) DepartmentsByWorkspace(_ context.Context, workspaceID string) ([]membership.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []membership.Department
	for _, d := range s.departments {
		if d.WorkspaceID == workspaceID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Principal returns a registered user
func (s *Store) Principal(_ context.Context, subjectID string) (*tenancy.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[subjectID]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	return &p, nil
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op
func (s *Store) Close() error { return nil }

// FindActive returns the active membership or tenancy.ErrMembershipNotFound
func (s *Store) FindActive(_ context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{subjectID, entityID, level}]
	if !ok || !m.IsActive() {
		return nil, tenancy.ErrMembershipNotFound
	}
	return &m, nil
}

// GetMembership returns the membership in any status
func (s *Store) GetMembership(_ context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey{subjectID, entityID, level}]
	if !ok {
		return nil, tenancy.ErrMembershipNotFound
	}
	return &m, nil
}

// InsertMembership adds a row
func (s *Store) InsertMembership(_ context.Context, m *tenancy.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{m.SubjectID, m.EntityID, m.Level}
	if _, ok := s.memberships[k]; ok {
		return membership.ErrMembershipExists
	}
	s.memberships[k] = *m
	return nil
}

func (s *Store) updateMembership(subjectID, entityID string, level tenancy.Level, fn func(*tenancy.Membership)) (*tenancy.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{subjectID, entityID, level}
	m, ok := s.memberships[k]
	if !ok {
		return nil, tenancy.ErrMembershipNotFound
	}
	fn(&m)
	s.memberships[k] = m
	return &m, nil
}

// SetMembershipRole updates a row's role
func (s *Store) SetMembershipRole(_ context.Context, subjectID, entityID string, level tenancy.Level, role tenancy.Role, at time.Time) (*tenancy.Membership, error) {
	return s.updateMembership(subjectID, entityID, level, func(m *tenancy.Membership) {
		m.Role = role
		m.UpdatedAt = at
	})
}

// SetMembershipStatus updates a row's status
func (s *Store) SetMembershipStatus(_ context.Context, subjectID, entityID string, level tenancy.Level, status tenancy.MembershipStatus, at time.Time) (*tenancy.Membership, error) {
	return s.updateMembership(subjectID, entityID, level, func(m *tenancy.Membership) {
		m.Status = status
		m.UpdatedAt = at
	})
}

// DeleteMembership removes a row
func (s *Store) DeleteMembership(_ context.Context, subjectID, entityID string, level tenancy.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{subjectID, entityID, level}
	if _, ok := s.memberships[k]; !ok {
		return tenancy.ErrMembershipNotFound
	}
	delete(s.memberships, k)
	return nil
}

// ListMembers returns active rows ordered by subject
func (s *Store) ListMembers(_ context.Context, entityID string, level tenancy.Level) ([]tenancy.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []tenancy.Membership
	for k, m := range s.memberships {
		if k.entityID == entityID && k.level == level && m.IsActive() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// DeleteInvitedBefore drops stale invitations
func (s *Store) DeleteInvitedBefore(_ context.Context, cutoff time.Time) ([]tenancy.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []tenancy.Membership
	for k, m := range s.memberships {
		if m.Status == tenancy.MembershipInvited && m.CreatedAt.Before(cutoff) {
			removed = append(removed, m)
			delete(s.memberships, k)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].SubjectID < removed[j].SubjectID })
	return removed, nil
}
