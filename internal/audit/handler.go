package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cidledger/internal/platform/kafka/consumer"
)

// Handler drains the audit topic into a Store. It implements
// consumer.Handler; inserts are idempotent on the event ID.
type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Handle decodes one record. Malformed records are logged and committed so
// they cannot block the partition; store failures are returned for redelivery.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.Error("failed to parse event ID from message key",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		h.logger.Error("failed to unmarshal audit payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	event := Event{
		ID:         eventID,
		Category:   Category(p.Category),
		CID:        p.CID,
		Action:     Action(p.Action),
		Decision:   p.Decision,
		Reason:     p.Reason,
		RequestID:  p.RequestID,
		ActorID:    p.ActorID,
		Attributes: p.Attributes,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	} else {
		event.Timestamp = msg.Timestamp
	}
	if event.Category == "" {
		event.Category = CategoryOperations
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store audit event",
			"event_id", eventID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store audit event: %w", err)
	}

	h.logger.Debug("stored audit event", "event_id", eventID, "action", event.Action)
	return nil
}
