package tenancy

import (
	"context"
	"errors"
	"fmt"
)

// Chain is the authoritative containment path re-derived from entity
// records. OwnerID is the account's ownerId foreign key.
type Chain struct {
	AccountID    string
	OwnerID      string
	WorkspaceID  string
	DepartmentID string
	TeamID       string
}

// ID returns the chain's id at level
func (c Chain) ID(level Level) string {
	switch level {
	case LevelAccount:
		return c.AccountID
	case LevelWorkspace:
		return c.WorkspaceID
	case LevelDepartment:
		return c.DepartmentID
	case LevelTeam:
		return c.TeamID
	}
	return ""
}

func (c *Chain) set(level Level, id string) {
	switch level {
	case LevelAccount:
		c.AccountID = id
	case LevelWorkspace:
		c.WorkspaceID = id
	case LevelDepartment:
		c.DepartmentID = id
	case LevelTeam:
		c.TeamID = id
	}
}

// ResolveContainment walks upward from the deepest declared id, reading
// every parent from the child entity and never from the declaration. A
// declared id that disagrees with the recorded parent is a
// ScopeMismatchError; an id that does not resolve is a NotFoundError.
//
// Every component that needs to trust a scope goes through this function.
func ResolveContainment(ctx context.Context, entities EntityStore, d Declared) (Chain, error) {
	var chain Chain

	deepest, ok := d.Deepest()
	if !ok {
		return chain, nil
	}

	level := deepest
	chain.set(level, d.ID(level))

	for {
		parentLevel, hasParent := level.Parent()
		if !hasParent {
			break
		}

		parentID, err := entities.ParentID(ctx, level, chain.ID(level))
		if err != nil {
			return Chain{}, entityError(level, chain.ID(level), err)
		}

		if declared := d.ID(parentLevel); declared != "" && declared != parentID {
			return Chain{}, &ScopeMismatchError{
				Level:    parentLevel,
				Declared: declared,
				Actual:   parentID,
			}
		}

		chain.set(parentLevel, parentID)
		level = parentLevel
	}

	ownerID, err := entities.AccountOwnerID(ctx, chain.AccountID)
	if err != nil {
		return Chain{}, entityError(LevelAccount, chain.AccountID, err)
	}
	chain.OwnerID = ownerID

	return chain, nil
}

func entityError(level Level, id string, err error) error {
	if errors.Is(err, ErrEntityNotFound) {
		return &NotFoundError{Level: level, ID: id}
	}
	return fmt.Errorf("failed to read %s %s: %w", level, id, err)
}
