package models

import (
	"time"

	"cidledger/pkg/domain"
)

// Event is one immutable link in an identity's consent chain.
type Event struct {
	ID                domain.EventID
	CID               domain.CID
	Sequence          int64
	EventType         EventType
	Scope             *Scope
	EvidenceHash      string
	PreviousEventID   *domain.EventID
	PreviousEventHash *string
	EventHash         string
	Source            Source
	IPAddress         string
	UserAgent         string
	RecordedAt        time.Time
}

// Provenance describes where an append request came from.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// AppendRequest is the input to a chain append.
type AppendRequest struct {
	CID        domain.CID
	EventType  EventType
	Scope      *Scope
	Source     Source
	Provenance Provenance
}

func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Scope = e.Scope.Clone()
	if e.PreviousEventID != nil {
		id := *e.PreviousEventID
		out.PreviousEventID = &id
	}
	if e.PreviousEventHash != nil {
		h := *e.PreviousEventHash
		out.PreviousEventHash = &h
	}
	return &out
}

// NextEvent builds the successor of head (nil for an empty chain) and seals
// it. recorded_at never moves backwards relative to the head.
func NextEvent(head *Event, req AppendRequest, now time.Time) (*Event, error) {
	recordedAt := TruncateTimestamp(now)
	event := &Event{
		ID:         domain.NewEventID(),
		CID:        req.CID,
		Sequence:   1,
		EventType:  req.EventType,
		Scope:      req.Scope.Clone(),
		Source:     req.Source,
		IPAddress:  req.Provenance.IPAddress,
		UserAgent:  req.Provenance.UserAgent,
		RecordedAt: recordedAt,
	}
	if head != nil {
		prevID := head.ID
		prevHash := head.EventHash
		event.Sequence = head.Sequence + 1
		event.PreviousEventID = &prevID
		event.PreviousEventHash = &prevHash
		if head.RecordedAt.After(recordedAt) {
			event.RecordedAt = head.RecordedAt
		}
	}
	if err := event.Seal(); err != nil {
		return nil, err
	}
	return event, nil
}

// Seal fills EvidenceHash and EventHash from the other fields.
func (e *Event) Seal() error {
	evidence, err := EvidenceHash(e.Scope)
	if err != nil {
		return err
	}
	e.EvidenceHash = evidence
	hash, err := ComputeEventHash(e, e.PreviousEventHash)
	if err != nil {
		return err
	}
	e.EventHash = hash
	return nil
}

// TruncateTimestamp brings t to the precision stored by the database.
func TruncateTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
