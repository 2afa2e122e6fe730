package models

import (
	"cmp"
	"fmt"
	"slices"

	"cidledger/pkg/domain"
)

// MismatchKind classifies a chain verification failure.
type MismatchKind string

const (
	MismatchEventHash    MismatchKind = "event_hash_mismatch"
	MismatchEvidenceHash MismatchKind = "evidence_hash_mismatch"
	MismatchPreviousLink MismatchKind = "previous_link_mismatch"
	// MismatchAfterDivergence marks an event that is internally consistent
	// but sits behind an earlier broken link.
	MismatchAfterDivergence MismatchKind = "after_divergence"
)

type Mismatch struct {
	Index    int            `json:"index"`
	EventID  domain.EventID `json:"event_id"`
	Kind     MismatchKind   `json:"kind"`
	Expected string         `json:"expected"`
	Actual   string         `json:"actual"`
}

type VerifyResult struct {
	CID         domain.CID `json:"cid"`
	Valid       bool       `json:"valid"`
	EventsCount int        `json:"events_count"`
	Errors      []Mismatch `json:"errors"`
}

// FirstDivergence returns the index of the earliest reported mismatch, or -1.
func (r *VerifyResult) FirstDivergence() int {
	if len(r.Errors) == 0 {
		return -1
	}
	return r.Errors[0].Index
}

// Verify replays a history in chain order, recomputing every hash from stored
// fields and the previously computed hash. It never stops early; once a
// divergence is found every later event is reported too. Chain order is the
// stored sequence, not recorded_at, so a tampered timestamp cannot reorder
// the replay.
func Verify(cid domain.CID, history []*Event) *VerifyResult {
	events := slices.SortedStableFunc(slices.Values(history), func(a, b *Event) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	result := &VerifyResult{CID: cid, EventsCount: len(events), Errors: []Mismatch{}}

	var prev *Event
	var prevComputed *string
	diverged := false
	for i, e := range events {
		before := len(result.Errors)
		report := func(kind MismatchKind, expected, actual string) {
			result.Errors = append(result.Errors, Mismatch{
				Index: i, EventID: e.ID, Kind: kind, Expected: expected, Actual: actual,
			})
		}

		if evidence, err := EvidenceHash(e.Scope); err != nil {
			report(MismatchEvidenceHash, "", e.EvidenceHash)
		} else if evidence != e.EvidenceHash {
			report(MismatchEvidenceHash, evidence, e.EvidenceHash)
		}

		if expected, actual, ok := checkLink(prev, e, int64(i+1)); !ok {
			report(MismatchPreviousLink, expected, actual)
		}

		computed, err := ComputeEventHash(e, prevComputed)
		if err != nil {
			report(MismatchEventHash, "", e.EventHash)
		} else if computed != e.EventHash {
			report(MismatchEventHash, computed, e.EventHash)
		}

		if len(result.Errors) == before && diverged {
			report(MismatchAfterDivergence, derefOr(prevComputed, GenesisMarker), derefOr(e.PreviousEventHash, GenesisMarker))
		}
		if len(result.Errors) > before {
			diverged = true
		}

		prev = e
		prevComputed = &computed
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// checkLink compares e's back-pointer and position with its predecessor.
func checkLink(prev, e *Event, wantSequence int64) (expected, actual string, ok bool) {
	if e.Sequence != wantSequence {
		return fmt.Sprintf("sequence %d", wantSequence), fmt.Sprintf("sequence %d", e.Sequence), false
	}
	if prev == nil {
		if e.PreviousEventID != nil || e.PreviousEventHash != nil {
			return GenesisMarker, derefOr(e.PreviousEventHash, ""), false
		}
		return "", "", true
	}
	if e.PreviousEventID == nil || *e.PreviousEventID != prev.ID {
		actual := ""
		if e.PreviousEventID != nil {
			actual = e.PreviousEventID.String()
		}
		return prev.ID.String(), actual, false
	}
	if e.PreviousEventHash == nil || *e.PreviousEventHash != prev.EventHash {
		return prev.EventHash, derefOr(e.PreviousEventHash, ""), false
	}
	return "", "", true
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
