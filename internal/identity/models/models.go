package models

import (
	"time"

	"cidledger/pkg/domain"
)

// Identity is the registry record for one protected individual.
type Identity struct {
	CID          domain.CID
	Status       Status
	IdentityHash string
	VerifiedAt   *time.Time
	SuspendedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether consent can still be exercised for the identity.
func (i *Identity) IsActive() bool {
	return i != nil && i.Status.IsActive()
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.VerifiedAt = cloneTime(i.VerifiedAt)
	c.SuspendedAt = cloneTime(i.SuspendedAt)
	return &c
}

// ApplyStatus moves the identity to next and stamps set-once timestamps.
func (i *Identity) ApplyStatus(next Status, now time.Time) {
	i.Status = next
	i.UpdatedAt = now
	switch next {
	case StatusVerified:
		if i.VerifiedAt == nil {
			i.VerifiedAt = &now
		}
	case StatusSuspended:
		if i.SuspendedAt == nil {
			i.SuspendedAt = &now
		}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Verification is an append-only record of how an identity was verified.
type Verification struct {
	ID           domain.VerificationID
	CID          domain.CID
	Method       VerificationMethod
	Provider     string
	Result       VerificationResult
	EvidenceHash string
	CreatedAt    time.Time
}

// Contact is the single value held per (cid, contact type).
type Contact struct {
	CID       domain.CID
	Type      ContactType
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EvidenceRefs references the provider-held evidence behind a full
// verification. Only keyed digests of these references are persisted.
type EvidenceRefs struct {
	Seed        string
	Provider    string
	DocumentRef string
	LivenessRef string
}

// EvidenceRef references a liveness-only check for a claimed identity.
type EvidenceRef struct {
	Seed        string
	Provider    string
	LivenessRef string
}
