package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSources_MergePrecedence(t *testing.T) {
	tests := []struct {
		name    string
		sources Sources
		want    Declared
	}{
		{
			name: "verified context overrides path",
			sources: Sources{
				Verified: Declared{WorkspaceID: "ws-verified"},
				Path:     Declared{WorkspaceID: "ws-path"},
			},
			want: Declared{WorkspaceID: "ws-verified"},
		},
		{
			name: "path overrides query and body",
			sources: Sources{
				Path:  Declared{AccountID: "acct-path"},
				Query: Declared{AccountID: "acct-query"},
				Body:  Declared{AccountID: "acct-body"},
			},
			want: Declared{AccountID: "acct-path"},
		},
		{
			name: "later sources fill gaps only",
			sources: Sources{
				Path:  Declared{WorkspaceID: "ws-1"},
				Query: Declared{DepartmentID: "dept-1", WorkspaceID: "ws-other"},
				Body:  Declared{TeamID: "team-1", AccountID: "acct-1"},
			},
			want: Declared{AccountID: "acct-1", WorkspaceID: "ws-1", DepartmentID: "dept-1", TeamID: "team-1"},
		},
		{
			name:    "all empty",
			sources: Sources{},
			want:    Declared{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sources.Merge())
		})
	}
}

func TestDeclared_Deepest(t *testing.T) {
	level, ok := Declared{AccountID: "a", DepartmentID: "d"}.Deepest()
	assert.True(t, ok)
	assert.Equal(t, LevelDepartment, level)

	_, ok = Declared{}.Deepest()
	assert.False(t, ok)
	assert.True(t, Declared{}.IsEmpty())
}

func TestLevel_Parent(t *testing.T) {
	p, ok := LevelTeam.Parent()
	assert.True(t, ok)
	assert.Equal(t, LevelDepartment, p)

	_, ok = LevelAccount.Parent()
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(LevelDepartment, "human_support")
	assert.NoError(t, err)
	assert.Equal(t, RoleHumanSupport, role)

	_, err = ParseRole(LevelAccount, "manager")
	assert.Error(t, err)

	_, err = ParseRole(LevelTeam, "admin")
	assert.Error(t, err)
}
