package oracle

import (
	"strings"
	"time"

	consentmodels "cidledger/internal/consent/models"
	"cidledger/pkg/domain"
)

// Reason explains a check outcome. Denials carry the first failing rule.
type Reason string

const (
	ReasonAllowed            Reason = "allowed"
	ReasonIdentityNotFound   Reason = "identity_not_found"
	ReasonIdentityInactive   Reason = "identity_inactive"
	ReasonConsentRevoked     Reason = "consent_revoked"
	ReasonChainIntegrity     Reason = "chain_integrity_failure"
	ReasonUseTypeNotGranted  Reason = "use_type_not_granted"
	ReasonRegionNotPermitted Reason = "region_not_permitted"
	ReasonModalityDenied     Reason = "modality_denied"
	ReasonContentExcluded    Reason = "content_excluded"
	ReasonNotYetValid        Reason = "consent_not_yet_valid"
	ReasonExpired            Reason = "consent_expired"
)

// CheckRequest describes a proposed use. Empty fields are not evaluated.
type CheckRequest struct {
	CID             domain.CID
	UseType         string
	Region          string
	Modality        string
	ContentCategory string
	VerifyIntegrity bool
}

// Normalize matches the casing the consent scope stores: map keys and
// exclusions lower-case, regions upper-case.
func (r *CheckRequest) Normalize() {
	r.UseType = strings.ToLower(strings.TrimSpace(r.UseType))
	r.Modality = strings.ToLower(strings.TrimSpace(r.Modality))
	r.ContentCategory = strings.ToLower(strings.TrimSpace(r.ContentCategory))
	r.Region = strings.ToUpper(strings.TrimSpace(r.Region))
}

// CheckResult records the decision together with the exact inputs it was
// evaluated against, so an audit can reproduce it.
type CheckResult struct {
	CID             domain.CID                  `json:"cid"`
	Allowed         bool                        `json:"allowed"`
	ConsentStatus   consentmodels.ConsentStatus `json:"consent_status"`
	Reason          Reason                      `json:"reason"`
	ChainVerified   *bool                       `json:"chain_verified"`
	CheckedAt       time.Time                   `json:"checked_at"`
	IdentityStatus  string                      `json:"identity_status,omitempty"`
	UseType         string                      `json:"use_type,omitempty"`
	Region          string                      `json:"region,omitempty"`
	Modality        string                      `json:"modality,omitempty"`
	ContentCategory string                      `json:"content_category,omitempty"`
}

func (r *CheckResult) deny(status consentmodels.ConsentStatus, reason Reason) {
	r.Allowed = false
	r.ConsentStatus = status
	r.Reason = reason
}

func (r *CheckResult) allow() {
	r.Allowed = true
	r.ConsentStatus = consentmodels.ConsentActive
	r.Reason = ReasonAllowed
}
