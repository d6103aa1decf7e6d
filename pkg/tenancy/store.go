package tenancy

import "context"

// MembershipStore reads membership rows. Implementations must be safe for
// concurrent use.
type MembershipStore interface {
	// FindActive returns the Active membership of subjectID on entityID at
	// level, or ErrMembershipNotFound. Invited rows are never returned.
	FindActive(ctx context.Context, subjectID, entityID string, level Level) (*Membership, error)
}

// EntityStore reads the immutable containment edges.
type EntityStore interface {
	// ParentID returns the parent id recorded on the child entity at level
	// (workspace, department or team). Unknown children yield an error
	// matching ErrEntityNotFound.
	ParentID(ctx context.Context, level Level, id string) (string, error)

	// AccountOwnerID returns the ownerId foreign key of the account, or an
	// error matching ErrEntityNotFound.
	AccountOwnerID(ctx context.Context, accountID string) (string, error)
}
