package service

import (
	"context"
	"sync"
	"time"

	"visitid/internal/identity/store"
	dErrors "visitid/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for identity store mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock. The store handed to fn is scoped to the transaction: uniqueness
// checks and the following write observe one atomic unit.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txStore store.Store) error) error
}

// defaultTxTimeout bounds a promotion transaction when the caller did not
// set a deadline.
const defaultTxTimeout = 5 * time.Second

// memoryTx serializes transactions over an in-memory store with a coarse
// lock. Good enough for tests and single-node deployments; Postgres
// deployments use the sql-backed runner wired in cmd/server.
type memoryTx struct {
	mu    sync.Mutex
	store store.Store
}

func newMemoryTx(s store.Store) *memoryTx {
	return &memoryTx{store: s}
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(txStore store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}
