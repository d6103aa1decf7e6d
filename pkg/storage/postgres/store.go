package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantdesk/pkg/auth"
	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/storage"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Store implements every persistence interface on PostgreSQL. Writes and
// conditional updates go to the primary; plain reads may hit a replica.
type Store struct {
	conns *ConnectionManager
}

var _ storage.Backend = (*Store)(nil)

// NewStore creates a Store
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var parentQueries = map[tenancy.Level]string{
	tenancy.LevelWorkspace:  `SELECT account_id FROM workspaces WHERE id = $1`,
	tenancy.LevelDepartment: `SELECT workspace_id FROM departments WHERE id = $1`,
	tenancy.LevelTeam:       `SELECT department_id FROM teams WHERE id = $1`,
}

// ParentID reads the parent id recorded on the child row
func (s *Store) ParentID(ctx context.Context, level tenancy.Level, id string) (string, error) {
	query, ok := parentQueries[level]
	if !ok {
		return "", fmt.Errorf("level %q has no parent", level)
	}
	var parent string
	err := s.conns.Replica().QueryRowContext(ctx, query, id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &tenancy.NotFoundError{Level: level, ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read parent of %s %s: %w", level, id, err)
	}
	return parent, nil
}

// AccountOwnerID reads accounts.owner_id
func (s *Store) AccountOwnerID(ctx context.Context, accountID string) (string, error) {
	var owner string
	err := s.conns.Replica().QueryRowContext(ctx, `SELECT owner_id FROM accounts WHERE id = $1`, accountID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &tenancy.NotFoundError{Level: tenancy.LevelAccount, ID: accountID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read owner of account %s: %w", accountID, err)
	}
	return owner, nil
}

// Department returns one department row
func (s *Store) Department(ctx context.Context, id string) (*membership.Department, error) {
	d := &membership.Department{}
	err := s.conns.Replica().QueryRowContext(ctx,
		`SELECT id, workspace_id, name, created_at FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &tenancy.NotFoundError{Level: tenancy.LevelDepartment, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department %s: %w", id, err)
	}
	return d, nil
}

// DepartmentsByWorkspace lists a workspace's departments by name
func (s *Store) DepartmentsByWorkspace(ctx context.Context, workspaceID string) ([]membership.Department, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		`SELECT id, workspace_id, name, created_at FROM departments WHERE workspace_id = $1 ORDER BY name, id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var out []membership.Department
	for rows.Next() {
		var d membership.Department
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Principal loads a user row as a principal
func (s *Store) Principal(ctx context.Context, subjectID string) (*tenancy.Principal, error) {
	var (
		p     tenancy.Principal
		owner bool
	)
	err := s.conns.Replica().QueryRowContext(ctx,
		`SELECT id, email, is_platform_owner FROM users WHERE id = $1`, subjectID).
		Scan(&p.ID, &p.Email, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal %s: %w", subjectID, err)
	}
	p.Kind = tenancy.PrincipalUser
	if owner {
		p.Kind = tenancy.PrincipalPlatformOwner
	}
	return &p, nil
}

// HealthCheck pings the primary and replicas
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// DB returns the primary handle for health probes
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

// Close closes every connection
func (s *Store) Close() error {
	return s.conns.Close()
}
