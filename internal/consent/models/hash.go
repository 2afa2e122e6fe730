package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisMarker stands in for the previous hash of a chain's first event.
const GenesisMarker = "GENESIS"

const recordedAtLayout = "2006-01-02T15:04:05.000000Z"

// hashedFields is the canonical form of everything stored for an event except
// its own hash.
type hashedFields struct {
	ID                string  `json:"id"`
	CID               string  `json:"cid"`
	Sequence          int64   `json:"sequence"`
	EventType         string  `json:"event_type"`
	ConsentScope      *Scope  `json:"consent_scope"`
	EvidenceHash      string  `json:"evidence_hash"`
	PreviousEventID   *string `json:"previous_event_id"`
	PreviousEventHash *string `json:"previous_event_hash"`
	Source            string  `json:"source"`
	IPAddress         string  `json:"ip_address"`
	UserAgent         string  `json:"user_agent"`
	RecordedAt        string  `json:"recorded_at"`
}

// CanonicalScope renders scope as canonical JSON; nil renders as null.
func CanonicalScope(scope *Scope) ([]byte, error) {
	b, err := json.Marshal(scope)
	if err != nil {
		return nil, fmt.Errorf("canonicalize scope: %w", err)
	}
	return b, nil
}

// EvidenceHash is the hex SHA-256 of the canonical scope.
func EvidenceHash(scope *Scope) (string, error) {
	b, err := CanonicalScope(scope)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeEventHash hashes the stored fields of e chained onto previousHash.
// A nil previousHash means e opens the chain.
func ComputeEventHash(e *Event, previousHash *string) (string, error) {
	fields := hashedFields{
		ID:                e.ID.String(),
		CID:               e.CID.String(),
		Sequence:          e.Sequence,
		EventType:         string(e.EventType),
		ConsentScope:      e.Scope,
		EvidenceHash:      e.EvidenceHash,
		PreviousEventHash: e.PreviousEventHash,
		Source:            string(e.Source),
		IPAddress:         e.IPAddress,
		UserAgent:         e.UserAgent,
		RecordedAt:        e.RecordedAt.UTC().Format(recordedAtLayout),
	}
	if e.PreviousEventID != nil {
		id := e.PreviousEventID.String()
		fields.PreviousEventID = &id
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalize event: %w", err)
	}

	link := GenesisMarker
	if previousHash != nil {
		link = *previousHash
	}
	h := sha256.New()
	h.Write(b)
	h.Write([]byte("|"))
	h.Write([]byte(link))
	return hex.EncodeToString(h.Sum(nil)), nil
}
