package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"prodir/internal/platform/postgres"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

// numReviewShards bounds lock contention: submissions for different
// profiles rarely share a shard.
const numReviewShards = 128

const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes submissions per profile for the in-memory stores.
type ShardedTx struct {
	shards  [numReviewShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx(timeout time.Duration) *ShardedTx {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &ShardedTx{timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, profileID domain.ProfileID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	mu := &t.shards[shardOf(profileID)]
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

func shardOf(id domain.ProfileID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return h.Sum32() % numReviewShards
}

// PostgresTx runs each submission in one database transaction. Row locks
// taken by the aggregate update do the per-profile serialization.
type PostgresTx struct {
	runner *postgres.TxRunner
}

func NewPostgresTx(runner *postgres.TxRunner) *PostgresTx {
	return &PostgresTx{runner: runner}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ domain.ProfileID, fn func(ctx context.Context) error) error {
	return t.runner.RunInTx(ctx, fn)
}
