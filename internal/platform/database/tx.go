package database

import (
	"context"
	"database/sql"
	"time"

	dErrors "cidledger/pkg/domain-errors"
)

// DefaultTxTimeout bounds transactions whose context carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// RunInTx runs fn inside a transaction and commits when fn returns nil.
// A zero timeout means DefaultTxTimeout.
func RunInTx(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
