package service

import (
	"context"
	"time"

	"cidledger/internal/consent/metrics"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	platformsync "cidledger/pkg/platform/sync"
)

// ChainTx is the per-CID serialization point for appends. Reading the
// identity, reading the head and inserting its successor must all happen
// inside fn, through the store and identity reader it is handed. Implementations
// may wrap a database transaction holding the identity row lock or, in memory,
// a sharded mutex.
type ChainTx interface {
	RunInTx(ctx context.Context, cid domain.CID, fn TxFunc) error
}

// TxFunc is the body of a chain transaction.
type TxFunc func(ctx context.Context, store Store, identities IdentityReader) error

// defaultChainTxTimeout bounds a chain transaction when the caller set no deadline.
const defaultChainTxTimeout = 5 * time.Second

type shardedChainTx struct {
	mu         *platformsync.ShardedMutex
	store      Store
	identities IdentityReader
	timeout    time.Duration
	metrics    *metrics.Metrics
}

// NewShardedTx serializes appends per CID in process. Pair it with a store
// that also checks the expected previous event, such as the in-memory store.
func NewShardedTx(store Store, identities IdentityReader, m *metrics.Metrics) ChainTx {
	return &shardedChainTx{
		mu:         platformsync.NewShardedMutex(),
		store:      store,
		identities: identities,
		timeout:    defaultChainTxTimeout,
		metrics:    m,
	}
}

func (t *shardedChainTx) RunInTx(ctx context.Context, cid domain.CID, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	lockStart := time.Now()
	t.mu.Lock(string(cid))
	if t.metrics != nil {
		t.metrics.ObserveShardLockWait(time.Since(lockStart).Seconds())
	}
	defer t.mu.Unlock(string(cid))

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store, t.identities)
}
