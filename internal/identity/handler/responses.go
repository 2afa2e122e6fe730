package handler

import (
	"time"

	"cidledger/internal/identity/models"
)

type IdentityResponse struct {
	CID           string                 `json:"cid"`
	Status        string                 `json:"status"`
	IdentityHash  string                 `json:"identity_hash"`
	VerifiedAt    *time.Time             `json:"verified_at,omitempty"`
	SuspendedAt   *time.Time             `json:"suspended_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Verifications []VerificationResponse `json:"verifications,omitempty"`
	Contacts      []ContactResponse      `json:"contacts,omitempty"`
}

type VerificationResponse struct {
	ID           string    `json:"id"`
	Method       string    `json:"method"`
	Provider     string    `json:"provider"`
	Result       string    `json:"result"`
	EvidenceHash string    `json:"evidence_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type ContactResponse struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toIdentityResponse(i *models.Identity) *IdentityResponse {
	return &IdentityResponse{
		CID:          i.CID.String(),
		Status:       string(i.Status),
		IdentityHash: i.IdentityHash,
		VerifiedAt:   i.VerifiedAt,
		SuspendedAt:  i.SuspendedAt,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func toVerificationResponses(vs []*models.Verification) []VerificationResponse {
	out := make([]VerificationResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, VerificationResponse{
			ID:           v.ID.String(),
			Method:       string(v.Method),
			Provider:     v.Provider,
			Result:       string(v.Result),
			EvidenceHash: v.EvidenceHash,
			CreatedAt:    v.CreatedAt,
		})
	}
	return out
}

func toContactResponse(c *models.Contact) ContactResponse {
	return ContactResponse{
		Type:      string(c.Type),
		Value:     c.Value,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
