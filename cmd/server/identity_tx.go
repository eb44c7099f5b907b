package main

import (
	"context"
	"database/sql"
	"time"

	"visitid/internal/identity/store"
	dErrors "visitid/pkg/domain-errors"
)

const defaultIdentityTxTimeout = 5 * time.Second

// identityPostgresTx runs identity mutations inside a database
// transaction so uniqueness checks and the following write observe
// one atomic unit.
type identityPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newIdentityPostgresTx(db *sql.DB) *identityPostgresTx {
	return &identityPostgresTx{db: db}
}

func (t *identityPostgresTx) RunInTx(ctx context.Context, fn func(txStore store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultIdentityTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(store.NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
