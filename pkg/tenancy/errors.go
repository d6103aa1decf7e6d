package tenancy

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound covers both "does not exist" and "exists but is not
	// visible to the caller" so cross-tenant existence never leaks.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrScopeMismatch means a client-declared parent id disagrees with the
	// parent recorded on the child entity.
	ErrScopeMismatch = errors.New("scope mismatch")

	// ErrInsufficientPermissions means no required role was satisfied.
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	// ErrMembershipNotFound means no active membership row exists.
	// The resolver absorbs it; it never reaches callers of Resolve.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrInvalidToken is returned by token verifiers.
	ErrInvalidToken = errors.New("invalid token")

	// ErrCacheUnavailable is reported by cache backends. It is always
	// absorbed and degrades to a direct store read.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// NotFoundError identifies the entity that failed to resolve
type NotFoundError struct {
	Level Level
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Level, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// ScopeMismatchError records which level disagreed and how
type ScopeMismatchError struct {
	Level    Level
	Declared string
	Actual   string
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("scope mismatch at %s: declared %q, entity belongs to %q", e.Level, e.Declared, e.Actual)
}

func (e *ScopeMismatchError) Is(target error) bool {
	return target == ErrScopeMismatch
}

// IsNotFound reports whether err is an entity-not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsScopeMismatch reports whether err is a scope mismatch
func IsScopeMismatch(err error) bool {
	return errors.Is(err, ErrScopeMismatch)
}
