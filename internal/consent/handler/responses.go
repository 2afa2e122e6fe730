package handler

import (
	"time"

	"cidledger/internal/consent/models"
)

type EventResponse struct {
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
	IPAddress         string        `json:"ip_address,omitempty"`
	UserAgent         string        `json:"user_agent,omitempty"`
	RecordedAt        time.Time     `json:"recorded_at"`
}

type HistoryResponse struct {
	CID    string          `json:"cid"`
	Events []EventResponse `json:"events"`
}

type CurrentConsentResponse struct {
	CID           string        `json:"cid"`
	ConsentStatus string        `json:"consent_status"`
	ConsentScope  *models.Scope `json:"consent_scope"`
}

func toEventResponse(e *models.Event) EventResponse {
	resp := EventResponse{
		ID:                e.ID.String(),
		CID:               e.CID.String(),
		Sequence:          e.Sequence,
		EventType:         string(e.EventType),
		ConsentScope:      e.Scope,
		EvidenceHash:      e.EvidenceHash,
		PreviousEventHash: e.PreviousEventHash,
		EventHash:         e.EventHash,
		Source:            string(e.Source),
		IPAddress:         e.IPAddress,
		UserAgent:         e.UserAgent,
		RecordedAt:        e.RecordedAt,
	}
	if e.PreviousEventID != nil {
		id := e.PreviousEventID.String()
		resp.PreviousEventID = &id
	}
	return resp
}
