package conversations

import (
	"context"
	"errors"
)

// RetryOnConflict runs fn and, if it lost a conditional update, runs it
// exactly once more. fn must re-read whatever state it depends on.
func RetryOnConflict(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, ErrConcurrentModification) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return err
	}
	return fn(ctx)
}
