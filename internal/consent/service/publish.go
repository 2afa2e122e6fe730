package service

import (
	"context"
	"encoding/json"
	"time"

	"cidledger/internal/consent/models"
	"cidledger/internal/platform/kafka/producer"
)

// eventMessage is the wire form of an appended event on the consent topic.
type eventMessage struct {
	ID                string        `json:"id"`
	CID               string        `json:"cid"`
	Sequence          int64         `json:"sequence"`
	EventType         string        `json:"event_type"`
	ConsentScope      *models.Scope `json:"consent_scope"`
	EvidenceHash      string        `json:"evidence_hash"`
	PreviousEventID   *string       `json:"previous_event_id"`
	PreviousEventHash *string       `json:"previous_event_hash"`
	EventHash         string        `json:"event_hash"`
	Source            string        `json:"source"`
	RecordedAt        time.Time     `json:"recorded_at"`
}

// publish hands the event to Kafka keyed by CID, so one identity's events
// stay ordered within a partition. Delivery is asynchronous; the chain in the
// store stays the source of truth.
func (s *Service) publish(ctx context.Context, e *models.Event) {
	if s.producer == nil {
		return
	}
	msg := eventMessage{
		ID:                e.ID.String(),
		CID:               e.CID.String(),
		Sequence:          e.Sequence,
		EventType:         string(e.EventType),
		ConsentScope:      e.Scope,
		EvidenceHash:      e.EvidenceHash,
		PreviousEventHash: e.PreviousEventHash,
		EventHash:         e.EventHash,
		Source:            string(e.Source),
		RecordedAt:        e.RecordedAt,
	}
	if e.PreviousEventID != nil {
		id := e.PreviousEventID.String()
		msg.PreviousEventID = &id
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logWarn(ctx, "failed to encode consent event", "cid", e.CID, "error", err)
		return
	}
	if err := s.producer.ProduceAsync(&producer.Message{
		Topic:   s.topic,
		Key:     []byte(e.CID),
		Value:   payload,
		Headers: map[string]string{"event_type": string(e.EventType)},
	}); err != nil {
		s.logWarn(ctx, "failed to publish consent event", "cid", e.CID, "event_id", e.ID, "error", err)
	}
}
