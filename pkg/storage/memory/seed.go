package memory

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// Seed describes fixture data for local runs
type Seed struct {
	Users []struct {
		ID            string `yaml:"id"`
		Email         string `yaml:"email"`
		PlatformOwner bool   `yaml:"platform_owner"`
	} `yaml:"users"`
	Accounts []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		OwnerID string `yaml:"owner_id"`
	} `yaml:"accounts"`
	Workspaces []struct {
		ID        string `yaml:"id"`
		AccountID string `yaml:"account_id"`
	} `yaml:"workspaces"`
	Departments []struct {
		ID          string `yaml:"id"`
		WorkspaceID string `yaml:"workspace_id"`
		Name        string `yaml:"name"`
	} `yaml:"departments"`
	Teams []struct {
		ID           string `yaml:"id"`
		DepartmentID string `yaml:"department_id"`
	} `yaml:"teams"`
	Memberships []struct {
		SubjectID string `yaml:"subject_id"`
		EntityID  string `yaml:"entity_id"`
		Level     string `yaml:"level"`
		Role      string `yaml:"role"`
		Status    string `yaml:"status"`
	} `yaml:"memberships"`
}

// LoadSeedFile reads a YAML seed from path into s
func (s *Store) LoadSeedFile(path string, now time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return s.LoadSeed(f, now)
}

// LoadSeed decodes a YAML seed and registers everything in it. Parents
// must appear before their children.
func (s *Store) LoadSeed(r io.Reader, now time.Time) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range seed.Users {
		kind := tenancy.PrincipalUser
		if u.PlatformOwner {
			kind = tenancy.PrincipalPlatformOwner
		}
		s.users[u.ID] = tenancy.Principal{ID: u.ID, Kind: kind, Email: u.Email}
	}
	for _, a := range seed.Accounts {
		if _, ok := s.users[a.OwnerID]; !ok {
			return fmt.Errorf("account %s: unknown owner %s", a.ID, a.OwnerID)
		}
		s.accounts[a.ID] = account{name: a.Name, ownerID: a.OwnerID}
	}
	for _, w := range seed.Workspaces {
		if _, ok := s.accounts[w.AccountID]; !ok {
			return fmt.Errorf("workspace %s: unknown account %s", w.ID, w.AccountID)
		}
		s.workspaces[w.ID] = w.AccountID
	}
	for _, d := range seed.Departments {
		if _, ok := s.workspaces[d.WorkspaceID]; !ok {
			return fmt.Errorf("department %s: unknown workspace %s", d.ID, d.WorkspaceID)
		}
		s.departments[d.ID] = membership.Department{ID: d.ID, WorkspaceID: d.WorkspaceID, Name: d.Name, CreatedAt: now}
	}
	for _, t := range seed.Teams {
		if _, ok := s.departments[t.DepartmentID]; !ok {
			return fmt.Errorf("team %s: unknown department %s", t.ID, t.DepartmentID)
		}
		s.teams[t.ID] = t.DepartmentID
	}
	for _, m := range seed.Memberships {
		level := tenancy.Level(m.Level)
		if !level.Valid() {
			return fmt.Errorf("membership %s/%s: unknown level %q", m.SubjectID, m.EntityID, m.Level)
		}
		role, err := tenancy.ParseRole(level, m.Role)
		if err != nil {
			return fmt.Errorf("membership %s/%s: %w", m.SubjectID, m.EntityID, err)
		}
		status := tenancy.MembershipStatus(m.Status)
		switch status {
		case "":
			status = tenancy.MembershipActive
		case tenancy.MembershipActive, tenancy.MembershipInvited:
		default:
			return fmt.Errorf("membership %s/%s: unknown status %q", m.SubjectID, m.EntityID, m.Status)
		}
		s.memberships[membershipKey{m.SubjectID, m.EntityID, level}] = tenancy.Membership{
			SubjectID: m.SubjectID,
			EntityID:  m.EntityID,
			Level:     level,
			Role:      role,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}
