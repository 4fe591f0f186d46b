// Package retry holds the core's only automatic retry: an idempotent store
// read is attempted at most twice. Writes are never retried here; callers
// retry them and rely on the operations being idempotent.
package retry

import (
	"context"

	"prodir/pkg/platform/sentinel"
)

// Read runs fn and, if it fails with something other than a store fact
// (not found, conflict) while ctx is still live, runs it once more.
func Read[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || sentinel.IsFact(err) || ctx.Err() != nil {
		return v, err
	}
	return fn(ctx)
}
