package tenancy

// Declared holds client-supplied scope ids. Any field may be empty.
type Declared struct {
	AccountID    string `json:"account_id,omitempty"`
	WorkspaceID  string `json:"workspace_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	TeamID       string `json:"team_id,omitempty"`
}

// IsEmpty reports whether no id is declared
func (d Declared) IsEmpty() bool {
	return d.AccountID == "" && d.WorkspaceID == "" && d.DepartmentID == "" && d.TeamID == ""
}

// ID returns the declared id at level
func (d Declared) ID(level Level) string {
	switch level {
	case LevelAccount:
		return d.AccountID
	case LevelWorkspace:
		return d.WorkspaceID
	case LevelDepartment:
		return d.DepartmentID
	case LevelTeam:
		return d.TeamID
	}
	return ""
}

// Deepest returns the lowest level carrying a declared id
func (d Declared) Deepest() (Level, bool) {
	for i := len(Levels) - 1; i >= 0; i-- {
		if d.ID(Levels[i]) != "" {
			return Levels[i], true
		}
	}
	return "", false
}

// fill copies ids from other into d wherever d has none.
func (d Declared) fill(other Declared) Declared {
	if d.AccountID == "" {
		d.AccountID = other.AccountID
	}
	if d.WorkspaceID == "" {
		d.WorkspaceID = other.WorkspaceID
	}
	if d.DepartmentID == "" {
		d.DepartmentID = other.DepartmentID
	}
	if d.TeamID == "" {
		d.TeamID = other.TeamID
	}
	return d
}

// Sources groups the places a request can declare scope ids, in fixed
// precedence order: previously verified context, route path, query string,
// request body. Earlier sources win; later ones only fill gaps.
type Sources struct {
	Verified Declared
	Path     Declared
	Query    Declared
	Body     Declared
}

// Merge collapses the sources into one declaration honoring precedence.
func (s Sources) Merge() Declared {
	return s.Verified.fill(s.Path).fill(s.Query).fill(s.Body)
}
