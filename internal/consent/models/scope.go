package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	dErrors "cidledger/pkg/domain-errors"
	pstrings "cidledger/pkg/platform/strings"
	"cidledger/pkg/platform/validation"
)

// Scope is the structured policy carried by a consent event. Every field is
// serialized, including empty ones, so the canonical form survives storage.
type Scope struct {
	UseTypes          map[string]bool  `json:"use_types"`
	GeographicScope   *GeographicScope `json:"geographic_scope"`
	ContentExclusions []string         `json:"content_exclusions"`
	Modalities        map[string]bool  `json:"modalities"`
	Temporal          *Temporal        `json:"temporal"`
	RevocationReason  string           `json:"revocation_reason"`
}

type GeographicScope struct {
	Type    GeoType  `json:"type"`
	Regions []string `json:"regions"`
}

type Temporal struct {
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	AutoRenew  bool       `json:"auto_renew"`
}

// Normalize canonicalizes the scope in place: keys and set members trimmed,
// sets deduped and sorted, regions upper-cased, timestamps in UTC.
func (s *Scope) Normalize() {
	if s == nil {
		return
	}
	s.UseTypes = normalizeKeys(s.UseTypes)
	s.Modalities = normalizeKeys(s.Modalities)
	s.ContentExclusions = pstrings.NormalizeSet(s.ContentExclusions)
	if s.GeographicScope != nil {
		s.GeographicScope.Type = GeoType(strings.ToLower(strings.TrimSpace(string(s.GeographicScope.Type))))
		s.GeographicScope.Regions = pstrings.NormalizeUpperSet(s.GeographicScope.Regions)
		if s.GeographicScope.Regions == nil {
			s.GeographicScope.Regions = []string{}
		}
	}
	if s.Temporal != nil {
		s.Temporal.ValidFrom = s.Temporal.ValidFrom.UTC()
		if s.Temporal.ValidUntil != nil {
			until := s.Temporal.ValidUntil.UTC()
			s.Temporal.ValidUntil = &until
		}
	}
	s.RevocationReason = strings.TrimSpace(s.RevocationReason)
}

func normalizeKeys(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		// on a collision after trimming, deny wins
		if prior, ok := out[k]; ok {
			v = prior && v
		}
		out[k] = v
	}
	return out
}

// Validate checks the scope shape for the given event type. Field names are
// reported relative to the request body.
func (s *Scope) Validate(eventType EventType) error {
	if s == nil {
		if eventType.RequiresScope() {
			return dErrors.Invalid("consent_scope", "is required for "+string(eventType)+" events")
		}
		return nil
	}
	if s.RevocationReason != "" && eventType != EventRevoke {
		return dErrors.Invalid("consent_scope.revocation_reason", "only allowed on revoke events")
	}
	if err := validation.CheckStringLength("consent_scope.revocation_reason", s.RevocationReason, validation.MaxReasonLength); err != nil {
		return err
	}
	if err := validateKeys("consent_scope.use_types", s.UseTypes); err != nil {
		return err
	}
	if err := validateKeys("consent_scope.modalities", s.Modalities); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("consent_scope.content_exclusions", len(s.ContentExclusions), validation.MaxContentExclusions); err != nil {
		return err
	}
	if err := validation.CheckEachStringLength("consent_scope.content_exclusions", s.ContentExclusions, validation.MaxKeyLength); err != nil {
		return err
	}
	if g := s.GeographicScope; g != nil {
		if !g.Type.IsValid() {
			return dErrors.Invalid("consent_scope.geographic_scope.type", "must be allowlist or blocklist")
		}
		if err := validation.CheckSliceCount("consent_scope.geographic_scope.regions", len(g.Regions), validation.MaxRegions); err != nil {
			return err
		}
		if err := validation.CheckEachStringLength("consent_scope.geographic_scope.regions", g.Regions, validation.MaxRegionLength); err != nil {
			return err
		}
	}
	if t := s.Temporal; t != nil {
		if t.ValidFrom.IsZero() {
			return dErrors.Invalid("consent_scope.temporal.valid_from", "is required")
		}
		if t.ValidUntil != nil && !t.ValidUntil.After(t.ValidFrom) {
			return dErrors.Invalid("consent_scope.temporal.valid_until", "must be after valid_from")
		}
	}
	return nil
}

func validateKeys(field string, m map[string]bool) error {
	return validation.CheckMapKeys(field, m, validation.MaxScopeKeys, validation.MaxKeyLength)
}

// Clone returns a deep copy. Nil in, nil out.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return nil
	}
	out := &Scope{
		UseTypes:          maps.Clone(s.UseTypes),
		Modalities:        maps.Clone(s.Modalities),
		ContentExclusions: slices.Clone(s.ContentExclusions),
		RevocationReason:  s.RevocationReason,
	}
	if s.GeographicScope != nil {
		out.GeographicScope = &GeographicScope{
			Type:    s.GeographicScope.Type,
			Regions: slices.Clone(s.GeographicScope.Regions),
		}
	}
	if s.Temporal != nil {
		t := *s.Temporal
		if s.Temporal.ValidUntil != nil {
			until := *s.Temporal.ValidUntil
			t.ValidUntil = &until
		}
		out.Temporal = &t
	}
	return out
}
