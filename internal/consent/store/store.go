// Package store persists consent chains. Both implementations return
// sentinel errors: sentinel.ErrNotFound for an empty chain head and
// sentinel.ErrConflict when an append would fork the chain.
package store

import (
	"cidledger/internal/consent/models"
	"cidledger/pkg/domain"
)

// ConsentStates counts identities with a non-empty chain. Active chains
// replay to a scope; every other chain replays to null and counts as revoked.
type ConsentStates struct {
	Active  int64
	Revoked int64
}

// stateOf reports the consent state implied by a non-empty ordered chain.
// Only grant and reinstate open a scope, so a chain whose latest such event
// is missing or followed by a revoke replays to null.
func stateOf(events []*models.Event) models.ConsentStatus {
	for i := len(events) - 1; i >= 0; i-- {
		switch events[i].EventType {
		case models.EventGrant, models.EventReinstate:
			return models.ConsentActive
		case models.EventRevoke:
			return models.ConsentRevoked
		}
	}
	return models.ConsentRevoked
}

func cidStrings(cids []domain.CID) []string {
	out := make([]string, len(cids))
	for i, c := range cids {
		out[i] = string(c)
	}
	return out
}
