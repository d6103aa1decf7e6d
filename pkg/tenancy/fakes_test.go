package tenancy

import (
	"context"
	"sync"
)

type entityKey struct {
	level Level
	id    string
}

type fakeEntities struct {
	mu      sync.Mutex
	parents map[entityKey]string
	owners  map[string]string
	reads   int
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		parents: make(map[entityKey]string),
		owners:  make(map[string]string),
	}
}

func (f *fakeEntities) account(id, ownerID string) *fakeEntities {
	f.owners[id] = ownerID
	return f
}

func (f *fakeEntities) child(level Level, id, parentID string) *fakeEntities {
	f.parents[entityKey{level, id}] = parentID
	return f
}

func (f *fakeEntities) ParentID(_ context.Context, level Level, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	parent, ok := f.parents[entityKey{level, id}]
	if !ok {
		return "", ErrEntityNotFound
	}
	return parent, nil
}

func (f *fakeEntities) AccountOwnerID(_ context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[accountID]
	if !ok {
		return "", ErrEntityNotFound
	}
	return owner, nil
}

type fakeMemberships struct {
	mu    sync.Mutex
	rows  map[entityKey]map[string]*Membership
	calls int
}

func newFakeMemberships() *fakeMemberships {
	return &fakeMemberships{rows: make(map[entityKey]map[string]*Membership)}
}

func (f *fakeMemberships) add(subjectID string, level Level, entityID string, role Role, status MembershipStatus) *fakeMemberships {
	key := entityKey{level, entityID}
	if f.rows[key] == nil {
		f.rows[key] = make(map[string]*Membership)
	}
	f.rows[key][subjectID] = &Membership{
		SubjectID: subjectID,
		EntityID:  entityID,
		Level:     level,
		Role:      role,
		Status:    status,
	}
	return f
}

func (f *fakeMemberships) FindActive(_ context.Context, subjectID, entityID string, level Level) (*Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m, ok := f.rows[entityKey{level, entityID}][subjectID]
	if !ok || m.Status != MembershipActive {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

// tree builds: acct-1 (owner po-1) > ws-1 > dept-1 > team-1, plus
// acct-2 (owner po-2) > ws-2 > dept-2.
func tree() *fakeEntities {
	return newFakeEntities().
		account("acct-1", "po-1").
		account("acct-2", "po-2").
		child(LevelWorkspace, "ws-1", "acct-1").
		child(LevelWorkspace, "ws-2", "acct-2").
		child(LevelDepartment, "dept-1", "ws-1").
		child(LevelDepartment, "dept-2", "ws-2").
		child(LevelTeam, "team-1", "dept-1")
}
