package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresStore implements Store on the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the event; a redelivered ID is ignored.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal audit attributes: %w", err)
	}
	if event.Attributes == nil {
		attrs = []byte("{}")
	}
	if event.Category == "" {
		event.Category = CategoryOperations
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, timestamp, cid, action,
			decision, reason, request_id, actor_id, attributes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.CID,
		string(event.Action),
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ActorID,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCID(ctx context.Context, cid string, filter ListFilter) ([]Event, error) {
	var (
		b    strings.Builder
		args = []any{cid}
	)
	b.WriteString(`
		SELECT id, category, timestamp, cid, action,
			   decision, reason, request_id, actor_id, attributes
		FROM audit_events
		WHERE cid = $1`)
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		fmt.Fprintf(&b, " AND action = $%d", len(args))
	}
	b.WriteString(" ORDER BY timestamp DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			category string
			action   string
			attrs    []byte
		)
		if err := rows.Scan(&e.ID, &category, &e.Timestamp, &e.CID, &action,
			&e.Decision, &e.Reason, &e.RequestID, &e.ActorID, &attrs); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = Category(category)
		e.Action = Action(action)
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
