package models

import (
	"strings"

	dErrors "cidledger/pkg/domain-errors"
)

// EventType selects how an event folds into the derived scope.
type EventType string

const (
	EventGrant     EventType = "grant"
	EventModify    EventType = "modify"
	EventRestrict  EventType = "restrict"
	EventRevoke    EventType = "revoke"
	EventReinstate EventType = "reinstate"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventGrant, EventModify, EventRestrict, EventRevoke, EventReinstate:
		return true
	}
	return false
}

// RequiresScope reports whether events of this type must carry a scope.
func (t EventType) RequiresScope() bool {
	return t != EventRevoke
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.Invalid("event_type", "must be one of grant, modify, restrict, revoke, reinstate")
	}
	return t, nil
}

// Source records which surface an event was captured through.
type Source string

const (
	SourceOnboarding Source = "onboarding"
	SourceDashboard  Source = "dashboard"
	SourceAPI        Source = "api"
	SourceAdmin      Source = "admin"
	SourceSystem     Source = "system"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceOnboarding, SourceDashboard, SourceAPI, SourceAdmin, SourceSystem:
		return true
	}
	return false
}

func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", dErrors.Invalid("source", "must be one of onboarding, dashboard, api, admin, system")
	}
	return src, nil
}

// GeoType decides whether regions are the only permitted ones or the denied ones.
type GeoType string

const (
	GeoAllowlist GeoType = "allowlist"
	GeoBlocklist GeoType = "blocklist"
)

func (g GeoType) IsValid() bool {
	return g == GeoAllowlist || g == GeoBlocklist
}

// ConsentStatus summarises derived consent for an identity.
type ConsentStatus string

const (
	ConsentActive   ConsentStatus = "active"
	ConsentRevoked  ConsentStatus = "revoked"
	ConsentNotFound ConsentStatus = "not_found"
)

// StatusOf maps a derived scope to its consent status.
func StatusOf(scope *Scope) ConsentStatus {
	if scope == nil {
		return ConsentRevoked
	}
	return ConsentActive
}
