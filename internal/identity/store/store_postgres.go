package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cidledger/internal/identity/models"
	"cidledger/internal/platform/database"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
)

// PostgresStore persists identities, verifications and contacts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to an open transaction, so identity
// reads and locks can join a caller's transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// inTx runs fn in the bound transaction or a fresh one.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	return database.RunInTx(ctx, s.db, 0, func(_ context.Context, tx *sql.Tx) error {
		return fn(tx)
	})
}

const identityColumns = `cid, status, identity_hash, verified_at, suspended_at, created_at, updated_at`

// Create writes the identity row and its verification in one transaction.
func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity, verification *models.Verification) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO identities (`+identityColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			string(identity.CID),
			string(identity.Status),
			identity.IdentityHash,
			identity.VerifiedAt,
			identity.SuspendedAt,
			identity.CreatedAt,
			identity.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert identity: %w", err)
		}
		if verification == nil {
			return nil
		}
		if err := insertVerification(ctx, tx, verification); err != nil {
			return err
		}
		return nil
	})
}

func insertVerification(ctx context.Context, exec dbExecutor, v *models.Verification) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO verifications (id, cid, method, provider, result, evidence_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.UUID(v.ID),
		string(v.CID),
		string(v.Method),
		v.Provider,
		string(v.Result),
		v.EvidenceHash,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCID(ctx context.Context, cid domain.CID) (*models.Identity, error) {
	identity, err := scanIdentity(s.execer().QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE cid = $1`, string(cid)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return identity, nil
}

// FindMany reads every requested identity in a single round trip.
func (s *PostgresStore) FindMany(ctx context.Context, cids []domain.CID) (map[domain.CID]*models.Identity, error) {
	out := make(map[domain.CID]*models.Identity, len(cids))
	if len(cids) == 0 {
		return out, nil
	}
	keys := make([]string, len(cids))
	for i, c := range cids {
		keys[i] = string(c)
	}
	rows, err := s.execer().QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE cid = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out[identity.CID] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Execute atomically validates and mutates an identity under a row lock.
func (s *PostgresStore) Execute(ctx context.Context, cid domain.CID, validate func(*models.Identity) error, mutate func(*models.Identity) bool) (*models.Identity, error) {
	var result *models.Identity
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		identity, err := scanIdentity(tx.QueryRowContext(ctx,
			`SELECT `+identityColumns+` FROM identities WHERE cid = $1 FOR UPDATE`, string(cid)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("find identity for execute: %w", err)
		}
		if err := validate(identity); err != nil {
			return err
		}
		if mutate(identity) {
			if err := updateIdentity(ctx, tx, identity); err != nil {
				return err
			}
		}
		result = identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockForAppend takes the identity row lock that serializes consent appends
// for cid. Only valid on a transaction-bound store.
func (s *PostgresStore) LockForAppend(ctx context.Context, cid domain.CID) (*models.Identity, error) {
	if s.tx == nil {
		return nil, fmt.Errorf("lock identity: store is not bound to a transaction")
	}
	identity, err := scanIdentity(s.tx.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE cid = $1 FOR UPDATE`, string(cid)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock identity: %w", err)
	}
	return identity, nil
}

func updateIdentity(ctx context.Context, exec dbExecutor, identity *models.Identity) error {
	res, err := exec.ExecContext(ctx, `
		UPDATE identities
		SET status = $2, verified_at = $3, suspended_at = $4, updated_at = $5
		WHERE cid = $1
	`,
		string(identity.CID),
		string(identity.Status),
		identity.VerifiedAt,
		identity.SuspendedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UpsertContact inserts or replaces the value for (cid, type).
func (s *PostgresStore) UpsertContact(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	row := s.execer().QueryRowContext(ctx, `
		INSERT INTO contacts (cid, contact_type, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cid, contact_type)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		RETURNING cid, contact_type, value, created_at, updated_at
	`,
		string(contact.CID),
		string(contact.Type),
		contact.Value,
		contact.CreatedAt,
		contact.UpdatedAt,
	)
	stored, err := scanContact(row)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) ListVerifications(ctx context.Context, cid domain.CID) ([]*models.Verification, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT id, cid, method, provider, result, evidence_hash, created_at
		FROM verifications
		WHERE cid = $1
		ORDER BY created_at, id
	`, string(cid))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		var (
			v      models.Verification
			rawID  uuid.UUID
			rawCID string
			method string
			result string
		)
		if err := rows.Scan(&rawID, &rawCID, &method, &v.Provider, &result, &v.EvidenceHash, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		v.ID = domain.VerificationID(rawID)
		v.CID = domain.CID(rawCID)
		v.Method = models.VerificationMethod(method)
		v.Result = models.VerificationResult(result)
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, cid domain.CID) ([]*models.Contact, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT cid, contact_type, value, created_at, updated_at
		FROM contacts
		WHERE cid = $1
		ORDER BY contact_type
	`, string(cid))
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.execer().QueryContext(ctx, `SELECT status, COUNT(*) FROM identities GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Status]int64, len(models.AllStatuses))
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan identity count: %w", err)
		}
		out[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity counts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		identity    models.Identity
		cid         string
		status      string
		verifiedAt  sql.NullTime
		suspendedAt sql.NullTime
	)
	if err := row.Scan(&cid, &status, &identity.IdentityHash, &verifiedAt, &suspendedAt, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return nil, err
	}
	identity.CID = domain.CID(cid)
	identity.Status = models.Status(status)
	identity.VerifiedAt = nullTime(verifiedAt)
	identity.SuspendedAt = nullTime(suspendedAt)
	return &identity, nil
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c           models.Contact
		cid         string
		contactType string
	)
	if err := row.Scan(&cid, &contactType, &c.Value, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CID = domain.CID(cid)
	c.Type = models.ContactType(contactType)
	return &c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
