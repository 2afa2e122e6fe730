package audit

import "context"

// Store persists audit events. Append is idempotent on Event.ID so the Kafka
// sink can redeliver safely.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCID(ctx context.Context, cid string, filter ListFilter) ([]Event, error)
}
