package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	consentmodels "cidledger/internal/consent/models"
	idmodels "cidledger/internal/identity/models"
	"cidledger/pkg/domain"
)

// FixedTime is a deterministic clock value for tests.
var FixedTime = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

var cidCounter atomic.Uint64

// NextCID returns a fresh, well-formed CID that is unique within the process.
func NextCID() domain.CID {
	return domain.CID(fmt.Sprintf("%s%016x", domain.CIDPrefix, 0xc1d0000000000000|cidCounter.Add(1)))
}

// IdentityBuilder provides a fluent API for creating test identities.
type IdentityBuilder struct {
	identity *idmodels.Identity
}

// NewIdentityBuilder starts from a verified identity with a unique CID.
func NewIdentityBuilder() *IdentityBuilder {
	now := FixedTime
	return &IdentityBuilder{
		identity: &idmodels.Identity{
			CID:          NextCID(),
			Status:       idmodels.StatusVerified,
			IdentityHash: "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
			VerifiedAt:   &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func (b *IdentityBuilder) WithCID(cid domain.CID) *IdentityBuilder {
	b.identity.CID = cid
	return b
}

// WithStatus sets the status and the lifecycle timestamps it implies.
func (b *IdentityBuilder) WithStatus(status idmodels.Status) *IdentityBuilder {
	b.identity.Status = status
	b.identity.VerifiedAt = nil
	b.identity.SuspendedAt = nil
	now := b.identity.CreatedAt
	switch status {
	case idmodels.StatusVerified, idmodels.StatusRevoked:
		b.identity.VerifiedAt = &now
	case idmodels.StatusSuspended:
		b.identity.VerifiedAt = &now
		b.identity.SuspendedAt = &now
	}
	return b
}

func (b *IdentityBuilder) WithCreatedAt(t time.Time) *IdentityBuilder {
	b.identity.CreatedAt = t
	b.identity.UpdatedAt = t
	return b
}

func (b *IdentityBuilder) Build() *idmodels.Identity {
	return b.identity.Clone()
}

// ScopeBuilder provides a fluent API for consent scopes.
type ScopeBuilder struct {
	scope *consentmodels.Scope
}

func NewScopeBuilder() *ScopeBuilder {
	return &ScopeBuilder{scope: &consentmodels.Scope{UseTypes: map[string]bool{}}}
}

func (b *ScopeBuilder) Allow(useTypes ...string) *ScopeBuilder {
	for _, u := range useTypes {
		b.scope.UseTypes[u] = true
	}
	return b
}

func (b *ScopeBuilder) Deny(useTypes ...string) *ScopeBuilder {
	for _, u := range useTypes {
		b.scope.UseTypes[u] = false
	}
	return b
}

func (b *ScopeBuilder) Modality(name string, allowed bool) *ScopeBuilder {
	if b.scope.Modalities == nil {
		b.scope.Modalities = map[string]bool{}
	}
	b.scope.Modalities[name] = allowed
	return b
}

func (b *ScopeBuilder) Allowlist(regions ...string) *ScopeBuilder {
	b.scope.GeographicScope = &consentmodels.GeographicScope{Type: consentmodels.GeoAllowlist, Regions: regions}
	return b
}

func (b *ScopeBuilder) Blocklist(regions ...string) *ScopeBuilder {
	b.scope.GeographicScope = &consentmodels.GeographicScope{Type: consentmodels.GeoBlocklist, Regions: regions}
	return b
}

func (b *ScopeBuilder) Exclude(categories ...string) *ScopeBuilder {
	b.scope.ContentExclusions = append(b.scope.ContentExclusions, categories...)
	return b
}

// Window sets the temporal block. A zero until leaves the window open-ended.
func (b *ScopeBuilder) Window(from, until time.Time, autoRenew bool) *ScopeBuilder {
	t := &consentmodels.Temporal{ValidFrom: from, AutoRenew: autoRenew}
	if !until.IsZero() {
		t.ValidUntil = &until
	}
	b.scope.Temporal = t
	return b
}

func (b *ScopeBuilder) Reason(reason string) *ScopeBuilder {
	b.scope.RevocationReason = reason
	return b
}

// Build returns a normalized copy.
func (b *ScopeBuilder) Build() *consentmodels.Scope {
	out := b.scope.Clone()
	out.Normalize()
	return out
}
