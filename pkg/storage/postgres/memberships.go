package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantdesk/pkg/membership"
	"github.com/platinummonkey/tenantdesk/pkg/tenancy"
)

const membershipColumns = `subject_id, entity_id, level, role, status, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row scanner) (*tenancy.Membership, error) {
	m := &tenancy.Membership{}
	if err := row.Scan(&m.SubjectID, &m.EntityID, &m.Level, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func scanMemberships(rows *sql.Rows) ([]tenancy.Membership, error) {
	defer rows.Close()
	var out []tenancy.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) oneMembership(row *sql.Row, what string) (*tenancy.Membership, error) {
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenancy.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s membership: %w", what, err)
	}
	return m, nil
}

// FindActive returns the active membership or tenancy.ErrMembershipNotFound
func (s *Store) FindActive(ctx context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error) {
	row := s.conns.Replica().QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE subject_id = $1 AND entity_id = $2 AND level = $3 AND status = 'active'`,
		subjectID, entityID, level)
	return s.oneMembership(row, "find")
}

// GetMembership returns the membership in any status
func (s *Store) GetMembership(ctx context.Context, subjectID, entityID string, level tenancy.Level) (*tenancy.Membership, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE subject_id = $1 AND entity_id = $2 AND level = $3`,
		subjectID, entityID, level)
	return s.oneMembership(row, "get")
}

// InsertMembership adds a membership row
func (s *Store) InsertMembership(ctx context.Context, m *tenancy.Membership) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.SubjectID, m.EntityID, m.Level, m.Role, m.Status, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return membership.ErrMembershipExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// SetMembershipRole updates the role of an existing row
func (s *Store) SetMembershipRole(ctx context.Context, subjectID, entityID string, level tenancy.Level, role tenancy.Role, at time.Time) (*tenancy.Membership, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		`UPDATE memberships SET role = $4, updated_at = $5
		 WHERE subject_id = $1 AND entity_id = $2 AND level = $3
		 RETURNING `+membershipColumns,
		subjectID, entityID, level, role, at)
	return s.oneMembership(row, "update role of")
}

// SetMembershipStatus updates the status of an existing row
func (s *Store) SetMembershipStatus(ctx context.Context, subjectID, entityID string, level tenancy.Level, status tenancy.MembershipStatus, at time.Time) (*tenancy.Membership, error) {
	row := s.conns.Primary().QueryRowContext(ctx,
		`UPDATE memberships SET status = $4, updated_at = $5
		 WHERE subject_id = $1 AND entity_id = $2 AND level = $3
		 RETURNING `+membershipColumns,
		subjectID, entityID, level, status, at)
	return s.oneMembership(row, "update status of")
}

// DeleteMembership removes a row in any status
func (s *Store) DeleteMembership(ctx context.Context, subjectID, entityID string, level tenancy.Level) error {
	res, err := s.conns.Primary().ExecContext(ctx,
		`DELETE FROM memberships WHERE subject_id = $1 AND entity_id = $2 AND level = $3`,
		subjectID, entityID, level)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if n == 0 {
		return tenancy.ErrMembershipNotFound
	}
	return nil
}

// ListMembers returns the active rows of an entity
func (s *Store) ListMembers(ctx context.Context, entityID string, level tenancy.Level) ([]tenancy.Membership, error) {
	rows, err := s.conns.Replica().QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE entity_id = $1 AND level = $2 AND status = 'active'
		 ORDER BY subject_id`,
		entityID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return scanMemberships(rows)
}

// DeleteInvitedBefore removes stale invitations and returns them
func (s *Store) DeleteInvitedBefore(ctx context.Context, cutoff time.Time) ([]tenancy.Membership, error) {
	rows, err := s.conns.Primary().QueryContext(ctx,
		`DELETE FROM memberships WHERE status = 'invited' AND created_at < $1
		 RETURNING `+membershipColumns,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return scanMemberships(rows)
}
