package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(id string) Principal {
	return Principal{ID: id, Kind: PrincipalUser}
}

func owner(id string) Principal {
	return Principal{ID: id, Kind: PrincipalPlatformOwner}
}

func TestResolver_RegularPrincipalFullChain(t *testing.T) {
	memberships := newFakeMemberships().
		add("u-1", LevelAccount, "acct-1", RoleMember, MembershipActive).
		add("u-1", LevelWorkspace, "ws-1", RoleAdmin, MembershipActive).
		add("u-1", LevelDepartment, "dept-1", RoleHumanSupport, MembershipActive).
		add("u-1", LevelTeam, "team-1", RoleLead, MembershipActive)

	r := NewResolver(tree(), memberships)
	tc, err := r.Resolve(context.Background(), user("u-1"), Declared{TeamID: "team-1"})
	require.NoError(t, err)

	assert.Equal(t, &TenantContext{
		AccountID:      "acct-1",
		AccountRole:    RoleMember,
		WorkspaceID:    "ws-1",
		WorkspaceRole:  RoleAdmin,
		DepartmentID:   "dept-1",
		DepartmentRole: RoleHumanSupport,
		TeamID:         "team-1",
		TeamRole:       RoleLead,
	}, tc)
}

func TestResolver_PartialContextIsNotAnError(t *testing.T) {
	memberships := newFakeMemberships().
		add("u-1", LevelWorkspace, "ws-1", RoleMember, MembershipActive)

	r := NewResolver(tree(), memberships)
	tc, err := r.Resolve(context.Background(), user("u-1"), Declared{DepartmentID: "dept-1"})
	require.NoError(t, err)

	assert.Equal(t, "acct-1", tc.AccountID)
	assert.Empty(t, tc.AccountRole)
	assert.Equal(t, RoleMember, tc.WorkspaceRole)
	assert.Equal(t, "dept-1", tc.DepartmentID)
	assert.Empty(t, tc.DepartmentRole)
}

func TestResolver_InvitedMembershipConfersNothing(t *testing.T) {
	memberships := newFakeMemberships().
		add("u-1", LevelAccount, "acct-1", RoleAdmin, MembershipInvited)

	r := NewResolver(tree(), memberships)
	tc, err := r.Resolve(context.Background(), user("u-1"), Declared{AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Empty(t, tc.AccountRole)
}

func TestResolver_ScopeMismatchNeverSubstitutes(t *testing.T) {
	memberships := newFakeMemberships().
		add("u-1", LevelAccount, "acct-1", RoleAdmin, MembershipActive).
		add("u-1", LevelAccount, "acct-2", RoleAdmin, MembershipActive)

	r := NewResolver(tree(), memberships)
	tc, err := r.Resolve(context.Background(), user("u-1"), Declared{AccountID: "acct-2", WorkspaceID: "ws-1"})
	require.Error(t, err)
	assert.Nil(t, tc)
	assert.True(t, errors.Is(err, ErrScopeMismatch))
}

func TestResolver_PlatformOwner(t *testing.T) {
	memberships := newFakeMemberships()
	r := NewResolver(tree(), memberships)

	t.Run("owned account gets top roles without membership rows", func(t *testing.T) {
		tc, err := r.Resolve(context.Background(), owner("po-1"), Declared{TeamID: "team-1"})
		require.NoError(t, err)

		assert.Equal(t, RoleAdmin, tc.AccountRole)
		assert.Equal(t, RoleAdmin, tc.WorkspaceRole)
		assert.Equal(t, RoleManager, tc.DepartmentRole)
		assert.Equal(t, RoleLead, tc.TeamRole)
		assert.Zero(t, memberships.calls, "platform owners skip membership lookups")
	})

	t.Run("account-only declaration", func(t *testing.T) {
		tc, err := r.Resolve(context.Background(), owner("po-1"), Declared{AccountID: "acct-1"})
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, tc.AccountRole)
		assert.Empty(t, tc.WorkspaceRole)
	})

	t.Run("foreign account is not found", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), owner("po-1"), Declared{AccountID: "acct-2"})
		assert.True(t, IsNotFound(err))
	})

	t.Run("foreign workspace is not found", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), owner("po-1"), Declared{WorkspaceID: "ws-2"})
		assert.True(t, IsNotFound(err))
	})
}

func TestResolver_EmptyDeclaration(t *testing.T) {
	r := NewResolver(tree(), newFakeMemberships())
	tc, err := r.Resolve(context.Background(), user("u-1"), Declared{})
	require.NoError(t, err)
	assert.Equal(t, &TenantContext{}, tc)
}

type brokenMemberships struct{}

func (brokenMemberships) FindActive(context.Context, string, string, Level) (*Membership, error) {
	return nil, errors.New("db down")
}

func TestResolver_MembershipStoreFailure(t *testing.T) {
	r := NewResolver(tree(), brokenMemberships{})
	_, err := r.Resolve(context.Background(), user("u-1"), Declared{AccountID: "acct-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestTenantContext_Declared(t *testing.T) {
	tc := &TenantContext{AccountID: "a", WorkspaceID: "w", AccountRole: RoleAdmin}
	assert.Equal(t, Declared{AccountID: "a", WorkspaceID: "w"}, tc.Declared())

	var nilCtx *TenantContext
	assert.Equal(t, Declared{}, nilCtx.Declared())
	assert.Empty(t, nilCtx.RoleAt(LevelAccount))
}

func TestTenantContext_DeepestAndHoldsRole(t *testing.T) {
	var empty TenantContext
	_, ok := empty.Deepest()
	assert.False(t, ok)
	assert.False(t, empty.HoldsRole())

	tc := TenantContext{AccountID: "acct-1", WorkspaceID: "ws-1", DepartmentID: "dept-1"}
	level, ok := tc.Deepest()
	require.True(t, ok)
	assert.Equal(t, LevelDepartment, level)
	assert.False(t, tc.HoldsRole())

	tc.AccountRole = RoleMember
	assert.True(t, tc.HoldsRole())
}
