package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cidledger/internal/consent/models"
	"cidledger/internal/platform/database"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
)

// PostgresStore persists consent events in PostgreSQL. The table is
// append-only; a trigger rejects UPDATE and DELETE.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction, typically one that
// already holds the identity row lock.
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

const eventColumns = `id, cid, sequence, event_type, consent_scope, evidence_hash,
	previous_event_id, previous_event_hash, event_hash, source, ip_address, user_agent, recorded_at`

func (s *PostgresStore) Head(ctx context.Context, cid domain.CID) (*models.Event, error) {
	event, err := scanEvent(s.execer().QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM consent_events
		WHERE cid = $1
		ORDER BY recorded_at DESC, sequence DESC
		LIMIT 1
	`, string(cid)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find chain head: %w", err)
	}
	return event, nil
}

// Append inserts event. The (cid, sequence) and previous_event_id unique
// constraints reject a second successor of the same head.
func (s *PostgresStore) Append(ctx context.Context, event *models.Event) error {
	scope, err := marshalScope(event.Scope)
	if err != nil {
		return err
	}
	var prevID *uuid.UUID
	if event.PreviousEventID != nil {
		id := uuid.UUID(*event.PreviousEventID)
		prevID = &id
	}
	_, err = s.execer().ExecContext(ctx, `
		INSERT INTO consent_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(event.ID),
		string(event.CID),
		event.Sequence,
		string(event.EventType),
		scope,
		event.EvidenceHash,
		prevID,
		event.PreviousEventHash,
		event.EventHash,
		string(event.Source),
		event.IPAddress,
		event.UserAgent,
		event.RecordedAt,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, database.ConstraintName(err))
		case database.IsForeignKeyViolation(err):
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert consent event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCID(ctx context.Context, cid domain.CID) ([]*models.Event, error) {
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM consent_events
		WHERE cid = $1
		ORDER BY recorded_at ASC, sequence ASC
	`, string(cid))
	if err != nil {
		return nil, fmt.Errorf("list consent events: %w", err)
	}
	defer rows.Close()

	out := []*models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent events: %w", err)
	}
	return out, nil
}

// ListByCIDs reads every chain in one query.
func (s *PostgresStore) ListByCIDs(ctx context.Context, cids []domain.CID) (map[domain.CID][]*models.Event, error) {
	out := make(map[domain.CID][]*models.Event, len(cids))
	if len(cids) == 0 {
		return out, nil
	}
	rows, err := s.execer().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM consent_events
		WHERE cid = ANY($1)
		ORDER BY cid, recorded_at ASC, sequence ASC
	`, cidStrings(cids))
	if err != nil {
		return nil, fmt.Errorf("list consent events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent event: %w", err)
		}
		out[e.CID] = append(out[e.CID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent events: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.execer().QueryRowContext(ctx, `SELECT COUNT(*) FROM consent_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count consent events: %w", err)
	}
	return n, nil
}

// CountConsentStates classifies each non-empty chain by its latest grant,
// reinstate or revoke event. Chains with none of them count as revoked.
func (s *PostgresStore) CountConsentStates(ctx context.Context) (ConsentStates, error) {
	var states ConsentStates
	err := s.execer().QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE decisive IN ('grant', 'reinstate')),
			COUNT(*) FILTER (WHERE decisive IS NULL OR decisive = 'revoke')
		FROM (
			SELECT
				cid,
				(array_agg(event_type ORDER BY recorded_at DESC, sequence DESC)
					FILTER (WHERE event_type IN ('grant', 'reinstate', 'revoke')))[1] AS decisive
			FROM consent_events
			GROUP BY cid
		) chains
	`).Scan(&states.Active, &states.Revoked)
	if err != nil {
		return ConsentStates{}, fmt.Errorf("count consent states: %w", err)
	}
	return states, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e         models.Event
		id        uuid.UUID
		cid       string
		eventType string
		scope     []byte
		prevID    uuid.NullUUID
		prevHash  sql.NullString
		source    string
	)
	if err := row.Scan(&id, &cid, &e.Sequence, &eventType, &scope, &e.EvidenceHash,
		&prevID, &prevHash, &e.EventHash, &source, &e.IPAddress, &e.UserAgent, &e.RecordedAt); err != nil {
		return nil, err
	}
	e.ID = domain.EventID(id)
	e.CID = domain.CID(cid)
	e.EventType = models.EventType(eventType)
	e.Source = models.Source(source)
	e.RecordedAt = e.RecordedAt.UTC()
	if prevID.Valid {
		p := domain.EventID(prevID.UUID)
		e.PreviousEventID = &p
	}
	if prevHash.Valid {
		h := prevHash.String
		e.PreviousEventHash = &h
	}
	if scope != nil {
		var sc models.Scope
		if err := json.Unmarshal(scope, &sc); err != nil {
			return nil, fmt.Errorf("decode consent scope: %w", err)
		}
		e.Scope = &sc
	}
	return &e, nil
}

// marshalScope renders the scope for a JSONB column; nil becomes SQL NULL.
func marshalScope(scope *models.Scope) (any, error) {
	if scope == nil {
		return nil, nil
	}
	b, err := models.CanonicalScope(scope)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
