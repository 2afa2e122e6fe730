package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cidledger/internal/consent/store"
	idmodels "cidledger/internal/identity/models"
	idstore "cidledger/internal/identity/store"
	"cidledger/internal/platform/database"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
)

type postgresChainTx struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresTx serializes appends per CID by holding the identity row lock
// for the life of the transaction. The append body sees the locked row, so
// the transaction needs a single pool connection.
func NewPostgresTx(db *sql.DB, timeout time.Duration) ChainTx {
	return &postgresChainTx{db: db, timeout: timeout}
}

func (t *postgresChainTx) RunInTx(ctx context.Context, cid domain.CID, fn TxFunc) error {
	return database.RunInTx(ctx, t.db, t.timeout, func(ctx context.Context, tx *sql.Tx) error {
		identity, err := idstore.NewPostgresTx(tx).LockForAppend(ctx, cid)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return fn(ctx, store.NewPostgresTx(tx), lockedIdentity{cid: cid, identity: identity})
	})
}

// lockedIdentity answers identity reads from the row locked by the
// transaction. A nil identity means the CID is not registered.
type lockedIdentity struct {
	cid      domain.CID
	identity *idmodels.Identity
}

func (l lockedIdentity) GetByCID(_ context.Context, cid domain.CID) (*idmodels.Identity, bool, error) {
	if cid != l.cid || l.identity == nil {
		return nil, false, nil
	}
	return l.identity.Clone(), true, nil
}
