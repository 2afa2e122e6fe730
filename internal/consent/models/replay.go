package models

import "maps"

// Replay folds an ordered history into the current scope. It is pure: the
// same history always yields an identical result, and inputs are not mutated.
// An empty history yields nil.
func Replay(events []*Event) *Scope {
	var current *Scope
	for _, e := range events {
		current = Apply(current, e)
	}
	return current
}

// Apply folds a single event onto current and returns the new scope.
func Apply(current *Scope, e *Event) *Scope {
	switch e.EventType {
	case EventGrant, EventReinstate:
		return e.Scope.Clone()
	case EventRevoke:
		return nil
	case EventModify:
		if current == nil || e.Scope == nil {
			return current
		}
		next := current.Clone()
		next.UseTypes = mergeOverride(next.UseTypes, e.Scope.UseTypes)
		next.Modalities = mergeOverride(next.Modalities, e.Scope.Modalities)
		replacePresent(next, e.Scope)
		return next
	case EventRestrict:
		if current == nil || e.Scope == nil {
			return current
		}
		next := current.Clone()
		// Use types always narrow: omitting them denies every prior key.
		next.UseTypes = narrow(current.UseTypes, e.Scope.UseTypes)
		if e.Scope.Modalities != nil {
			next.Modalities = narrow(current.Modalities, e.Scope.Modalities)
		}
		replacePresent(next, e.Scope)
		return next
	default:
		return current
	}
}

// mergeOverride lets keys in update win; keys only in prior survive.
func mergeOverride(prior, update map[string]bool) map[string]bool {
	if prior == nil && update == nil {
		return nil
	}
	out := make(map[string]bool, len(prior)+len(update))
	maps.Copy(out, prior)
	maps.Copy(out, update)
	return out
}

// narrow ANDs prior with restriction over the union of keys. A key missing
// on either side counts as false.
func narrow(prior, restriction map[string]bool) map[string]bool {
	out := make(map[string]bool, len(prior)+len(restriction))
	for k, v := range prior {
		out[k] = v && restriction[k]
	}
	for k := range restriction {
		if _, seen := out[k]; !seen {
			out[k] = false
		}
	}
	return out
}

// replacePresent copies the non-map fields that update declares.
func replacePresent(dst, update *Scope) {
	c := update.Clone()
	if c.GeographicScope != nil {
		dst.GeographicScope = c.GeographicScope
	}
	if c.ContentExclusions != nil {
		dst.ContentExclusions = c.ContentExclusions
	}
	if c.Temporal != nil {
		dst.Temporal = c.Temporal
	}
}
