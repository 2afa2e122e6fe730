package handler

import (
	"strings"

	"cidledger/internal/identity/models"
	"cidledger/pkg/validation"
)

// CreateVerifiedRequest carries references to provider-held evidence.
type CreateVerifiedRequest struct {
	Seed        string `json:"seed" validate:"max=256"`
	Provider    string `json:"provider" validate:"notblank,max=100"`
	DocumentRef string `json:"document_ref" validate:"notblank,max=512"`
	LivenessRef string `json:"liveness_ref" validate:"notblank,max=512"`
}

func (r *CreateVerifiedRequest) Normalize() {
	r.Provider = strings.TrimSpace(r.Provider)
	r.DocumentRef = strings.TrimSpace(r.DocumentRef)
	r.LivenessRef = strings.TrimSpace(r.LivenessRef)
}

func (r *CreateVerifiedRequest) Validate() error {
	return validation.Validate(r)
}

func (r *CreateVerifiedRequest) toRefs() models.EvidenceRefs {
	return models.EvidenceRefs{Seed: r.Seed, Provider: r.Provider, DocumentRef: r.DocumentRef, LivenessRef: r.LivenessRef}
}

type CreateClaimedRequest struct {
	Seed        string `json:"seed" validate:"max=256"`
	Provider    string `json:"provider" validate:"notblank,max=100"`
	LivenessRef string `json:"liveness_ref" validate:"notblank,max=512"`
}

func (r *CreateClaimedRequest) Normalize() {
	r.Provider = strings.TrimSpace(r.Provider)
	r.LivenessRef = strings.TrimSpace(r.LivenessRef)
}

func (r *CreateClaimedRequest) Validate() error {
	return validation.Validate(r)
}

func (r *CreateClaimedRequest) toRef() models.EvidenceRef {
	return models.EvidenceRef{Seed: r.Seed, Provider: r.Provider, LivenessRef: r.LivenessRef}
}

type UpsertContactRequest struct {
	Value string `json:"value" validate:"notblank,max=320"`
}

func (r *UpsertContactRequest) Normalize() {
	r.Value = strings.TrimSpace(r.Value)
}

func (r *UpsertContactRequest) Validate() error {
	return validation.Validate(r)
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=claimed verified suspended revoked"`
}

func (r *UpdateStatusRequest) Normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r *UpdateStatusRequest) Validate() error {
	return validation.Validate(r)
}
