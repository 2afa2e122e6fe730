package oracle

import (
	"time"

	consentmodels "cidledger/internal/consent/models"
	pstrings "cidledger/pkg/platform/strings"
)

// EvaluateScope applies the scope rules to a non-nil derived scope and
// returns the first failing reason, or "" when the use is permitted.
// Rule order (fail-fast):
//  1. use type must be granted explicitly
//  2. region must pass the allowlist or blocklist
//  3. modality must not be explicitly denied
//  4. content category must not be excluded
//  5. now must fall inside the temporal window
func EvaluateScope(scope *consentmodels.Scope, req CheckRequest, now time.Time) Reason {
	if req.UseType != "" && !scope.UseTypes[req.UseType] {
		return ReasonUseTypeNotGranted
	}
	if req.Region != "" && !regionPermitted(scope.GeographicScope, req.Region) {
		return ReasonRegionNotPermitted
	}
	if req.Modality != "" {
		// absent modalities are permitted; only an explicit false denies
		if permitted, ok := scope.Modalities[req.Modality]; ok && !permitted {
			return ReasonModalityDenied
		}
	}
	if req.ContentCategory != "" && pstrings.ContainsFold(scope.ContentExclusions, req.ContentCategory) {
		return ReasonContentExcluded
	}
	return temporalReason(scope.Temporal, now)
}

func regionPermitted(geo *consentmodels.GeographicScope, region string) bool {
	if geo == nil {
		return true
	}
	switch geo.Type {
	case consentmodels.GeoAllowlist:
		return pstrings.ContainsFold(geo.Regions, region)
	case consentmodels.GeoBlocklist:
		return !pstrings.ContainsFold(geo.Regions, region)
	default:
		return true
	}
}

func temporalReason(t *consentmodels.Temporal, now time.Time) Reason {
	if t == nil {
		return ""
	}
	if now.Before(t.ValidFrom) {
		return ReasonNotYetValid
	}
	if t.ValidUntil != nil && now.After(*t.ValidUntil) && !t.AutoRenew {
		return ReasonExpired
	}
	return ""
}
