package handler

import (
	"strings"

	"cidledger/internal/consent/models"
	"cidledger/pkg/validation"
)

// AppendEventRequest is the body of POST /v1/identities/{cid}/consent/events.
type AppendEventRequest struct {
	EventType    string        `json:"event_type" validate:"required,oneof=grant modify restrict revoke reinstate"`
	Source       string        `json:"source" validate:"required,oneof=onboarding dashboard api admin system"`
	ConsentScope *models.Scope `json:"consent_scope"`
}

func (r *AppendEventRequest) Normalize() {
	r.EventType = strings.ToLower(strings.TrimSpace(r.EventType))
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	r.ConsentScope.Normalize()
}

func (r *AppendEventRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	return r.ConsentScope.Validate(models.EventType(r.EventType))
}
