package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
)

const testCID = domain.CID("CID-00112233aabbccdd")

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func commercialScope(commercial bool) *Scope {
	return &Scope{UseTypes: map[string]bool{"commercial": commercial, "editorial": true}}
}

// buildChain seals events in order, one minute apart.
func buildChain(t *testing.T, specs ...struct {
	Type  EventType
	Scope *Scope
}) []*Event {
	t.Helper()
	var head *Event
	out := make([]*Event, 0, len(specs))
	for i, sp := range specs {
		e, err := NextEvent(head, AppendRequest{
			CID:        testCID,
			EventType:  sp.Type,
			Scope:      sp.Scope,
			Source:     SourceAPI,
			Provenance: Provenance{IPAddress: "10.0.0.1", UserAgent: "test"},
		}, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		out = append(out, e)
		head = e
	}
	return out
}

type ev = struct {
	Type  EventType
	Scope *Scope
}

func TestParseEnums(t *testing.T) {
	et, err := ParseEventType(" Revoke ")
	require.NoError(t, err)
	assert.Equal(t, EventRevoke, et)

	_, err = ParseEventType("delete")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, "event_type", dErrors.FieldOf(err))

	src, err := ParseSource("DASHBOARD")
	require.NoError(t, err)
	assert.Equal(t, SourceDashboard, src)

	_, err = ParseSource("fax")
	assert.Equal(t, "source", dErrors.FieldOf(err))
}

func TestScopeNormalizeMakesEqualScopesHashEqual(t *testing.T) {
	a := &Scope{
		UseTypes:          map[string]bool{" Commercial ": true},
		ContentExclusions: []string{"politics", " adult", "politics"},
		GeographicScope:   &GeographicScope{Type: "Blocklist", Regions: []string{"eu", "US ", "EU"}},
	}
	b := &Scope{
		UseTypes:          map[string]bool{"commercial": true},
		ContentExclusions: []string{"adult", "politics"},
		GeographicScope:   &GeographicScope{Type: GeoBlocklist, Regions: []string{"EU", "US"}},
	}
	a.Normalize()
	b.Normalize()

	ha, err := EvidenceHash(a)
	require.NoError(t, err)
	hb, err := EvidenceHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Equal(t, []string{"EU", "US"}, a.GeographicScope.Regions)
}

func TestEvidenceHashOfNilScope(t *testing.T) {
	h, err := EvidenceHash(nil)
	require.NoError(t, err)
	// sha256("null")
	assert.Equal(t, "74234e98afe7498fb5daf1f36ac2d78acc339464f950703b8c019892f982b90b", h)
}

func TestScopeValidate(t *testing.T) {
	until := t0.Add(-time.Hour)
	cases := []struct {
		name  string
		typ   EventType
		scope *Scope
		field string
	}{
		{"grant needs scope", EventGrant, nil, "consent_scope"},
		{"reason only on revoke", EventGrant, &Scope{RevocationReason: "x"}, "consent_scope.revocation_reason"},
		{"blank use type", EventGrant, &Scope{UseTypes: map[string]bool{"": true}}, "consent_scope.use_types"},
		{"bad geo type", EventModify, &Scope{GeographicScope: &GeographicScope{Type: "everywhere"}}, "consent_scope.geographic_scope.type"},
		{"missing valid_from", EventGrant, &Scope{Temporal: &Temporal{}}, "consent_scope.temporal.valid_from"},
		{"until before from", EventGrant, &Scope{Temporal: &Temporal{ValidFrom: t0, ValidUntil: &until}}, "consent_scope.temporal.valid_until"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.scope.Validate(tc.typ)
			require.Error(t, err)
			assert.Equal(t, tc.field, dErrors.FieldOf(err))
		})
	}

	assert.NoError(t, (*Scope)(nil).Validate(EventRevoke))
	assert.NoError(t, (&Scope{RevocationReason: "moved on"}).Validate(EventRevoke))
}

func TestNextEventLinksAndClampsTime(t *testing.T) {
	first, err := NextEvent(nil, AppendRequest{CID: testCID, EventType: EventGrant, Scope: commercialScope(true), Source: SourceOnboarding}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Nil(t, first.PreviousEventID)
	assert.Nil(t, first.PreviousEventHash)

	// clock went backwards
	second, err := NextEvent(first, AppendRequest{CID: testCID, EventType: EventRevoke, Source: SourceDashboard}, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, first.ID, *second.PreviousEventID)
	assert.Equal(t, first.EventHash, *second.PreviousEventHash)
	assert.Equal(t, first.RecordedAt, second.RecordedAt)
}

func TestNextEventTruncatesToMicroseconds(t *testing.T) {
	e, err := NextEvent(nil, AppendRequest{CID: testCID, EventType: EventRevoke, Source: SourceSystem}, t0.Add(1500*time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Microsecond), e.RecordedAt)
}

type ReplaySuite struct {
	suite.Suite
}

func TestReplaySuite(t *testing.T) {
	suite.Run(t, new(ReplaySuite))
}

func (s *ReplaySuite) TestEmptyHistoryIsNull() {
	s.Nil(Replay(nil))
}

func (s *ReplaySuite) TestGrantThenRevokeIsNull() {
	chain := buildChain(s.T(), ev{EventGrant, commercialScope(true)}, ev{EventRevoke, nil})
	s.Nil(Replay(chain))
}

func (s *ReplaySuite) TestReinstateYieldsExactScope() {
	reinstated := &Scope{
		UseTypes:   map[string]bool{"editorial": true},
		Modalities: map[string]bool{"voice": false},
	}
	chain := buildChain(s.T(),
		ev{EventGrant, commercialScope(true)},
		ev{EventRevoke, &Scope{RevocationReason: "pause"}},
		ev{EventReinstate, reinstated},
	)
	s.Equal(reinstated, Replay(chain))
}

func (s *ReplaySuite) TestModifyMergesMaps() {
	chain := buildChain(s.T(),
		ev{EventGrant, &Scope{
			UseTypes:          map[string]bool{"commercial": true, "editorial": true},
			Modalities:        map[string]bool{"face": true},
			ContentExclusions: []string{"adult"},
		}},
		ev{EventModify, &Scope{
			UseTypes:   map[string]bool{"commercial": false, "e-learning": true},
			Modalities: map[string]bool{"voice": true},
		}},
	)
	got := Replay(chain)
	s.Equal(map[string]bool{"commercial": false, "editorial": true, "e-learning": true}, got.UseTypes)
	s.Equal(map[string]bool{"face": true, "voice": true}, got.Modalities)
	s.Equal([]string{"adult"}, got.ContentExclusions, "absent fields keep their prior value")
}

func (s *ReplaySuite) TestRestrictNarrows() {
	chain := buildChain(s.T(),
		ev{EventGrant, &Scope{UseTypes: map[string]bool{"commercial": true, "editorial": true, "entertainment": false}}},
		ev{EventRestrict, &Scope{
			UseTypes:        map[string]bool{"commercial": true, "entertainment": true, "e-learning": true},
			GeographicScope: &GeographicScope{Type: GeoAllowlist, Regions: []string{"US"}},
		}},
	)
	got := Replay(chain)
	s.Equal(map[string]bool{
		"commercial":    true,
		"editorial":     false,
		"entertainment": false,
		"e-learning":    false,
	}, got.UseTypes)
	s.Equal(GeoAllowlist, got.GeographicScope.Type)
}

func (s *ReplaySuite) TestRestrictNeverWidens() {
	priors := []map[string]bool{
		{"a": true, "b": false},
		{"a": false, "b": false, "c": true},
		{"c": true},
	}
	restrictions := []map[string]bool{
		{"a": true, "b": true},
		{"b": true, "c": false},
		{},
	}
	for i, prior := range priors {
		for j, restriction := range restrictions {
			chain := buildChain(s.T(),
				ev{EventGrant, &Scope{UseTypes: prior}},
				ev{EventRestrict, &Scope{UseTypes: restriction}},
			)
			got := Replay(chain)
			for k, before := range prior {
				if !before {
					s.False(got.UseTypes[k], fmt.Sprintf("prior %d restriction %d key %s widened", i, j, k))
				}
			}
		}
	}
}

func (s *ReplaySuite) TestRestrictWithoutUseTypesDeniesAll() {
	chain := buildChain(s.T(),
		ev{EventGrant, &Scope{UseTypes: map[string]bool{"commercial": true, "editorial": true}}},
		ev{EventRestrict, &Scope{Modalities: map[string]bool{"voice": false}}},
	)
	got := Replay(chain)
	s.Equal(map[string]bool{"commercial": false, "editorial": false}, got.UseTypes)

	empty := buildChain(s.T(),
		ev{EventGrant, &Scope{UseTypes: map[string]bool{"commercial": true}}},
		ev{EventRestrict, &Scope{UseTypes: map[string]bool{}}},
	)
	s.Equal(got.UseTypes["commercial"], Replay(empty).UseTypes["commercial"], "omitted and empty use types behave the same")
}

func (s *ReplaySuite) TestRestrictNarrowsModalities() {
	chain := buildChain(s.T(),
		ev{EventGrant, &Scope{
			UseTypes:   map[string]bool{"commercial": true},
			Modalities: map[string]bool{"face": false, "voice": true, "body": true},
		}},
		ev{EventRestrict, &Scope{
			UseTypes:   map[string]bool{"commercial": true},
			Modalities: map[string]bool{"face": true, "voice": true},
		}},
	)
	got := Replay(chain)
	s.Equal(map[string]bool{"face": false, "voice": true, "body": false}, got.Modalities)
	s.Equal(map[string]bool{"commercial": true}, got.UseTypes)

	unchanged := buildChain(s.T(),
		ev{EventGrant, &Scope{UseTypes: map[string]bool{"commercial": true}, Modalities: map[string]bool{"face": false}}},
		ev{EventRestrict, &Scope{UseTypes: map[string]bool{"commercial": true}}},
	)
	s.Equal(map[string]bool{"face": false}, Replay(unchanged).Modalities, "absent modalities keep their prior value")
}

func (s *ReplaySuite) TestModifyAndRestrictOnNullStayNull() {
	chain := buildChain(s.T(),
		ev{EventRevoke, nil},
		ev{EventModify, commercialScope(true)},
		ev{EventRestrict, commercialScope(true)},
	)
	s.Nil(Replay(chain))
}

func (s *ReplaySuite) TestReplayIsDeterministicAndPure() {
	chain := buildChain(s.T(),
		ev{EventGrant, commercialScope(true)},
		ev{EventModify, &Scope{Modalities: map[string]bool{"voice": false}}},
		ev{EventRestrict, &Scope{UseTypes: map[string]bool{"commercial": true}}},
	)
	before, err := EvidenceHash(chain[0].Scope)
	s.Require().NoError(err)

	first := Replay(chain)
	second := Replay(chain)
	s.Equal(first, second)

	h1, _ := EvidenceHash(first)
	h2, _ := EvidenceHash(second)
	s.Equal(h1, h2)

	first.UseTypes["commercial"] = false
	after, _ := EvidenceHash(chain[0].Scope)
	s.Equal(before, after, "replay must not alias event scopes")
}

type VerifySuite struct {
	suite.Suite
	chain []*Event
}

func TestVerifySuite(t *testing.T) {
	suite.Run(t, new(VerifySuite))
}

func (s *VerifySuite) SetupTest() {
	s.chain = buildChain(s.T(),
		ev{EventGrant, commercialScope(true)},
		ev{EventModify, &Scope{Modalities: map[string]bool{"face": true}}},
		ev{EventRestrict, commercialScope(false)},
		ev{EventRevoke, &Scope{RevocationReason: "done"}},
		ev{EventReinstate, commercialScope(true)},
	)
}

func (s *VerifySuite) TestEmptyChainIsValid() {
	res := Verify(testCID, nil)
	s.True(res.Valid)
	s.Empty(res.Errors)
	s.Equal(-1, res.FirstDivergence())
}

func (s *VerifySuite) TestUntouchedChainIsValid() {
	res := Verify(testCID, s.chain)
	s.True(res.Valid)
	s.Equal(5, res.EventsCount)
	s.Empty(res.Errors)
}

func (s *VerifySuite) TestSingleFieldMutationReportedFromIndexOnward() {
	mutations := map[string]func(e *Event){
		"scope": func(e *Event) { e.Scope = commercialScope(false); e.Scope.UseTypes["editorial"] = false },
		"event_type": func(e *Event) {
			if e.EventType == EventGrant {
				e.EventType = EventReinstate
			} else {
				e.EventType = EventGrant
			}
		},
		"source":        func(e *Event) { e.Source = SourceAdmin },
		"ip_address":    func(e *Event) { e.IPAddress = "10.0.0.2" },
		"user_agent":    func(e *Event) { e.UserAgent = "curl" },
		"recorded_at":   func(e *Event) { e.RecordedAt = e.RecordedAt.Add(time.Microsecond) },
		"evidence_hash": func(e *Event) { e.EvidenceHash = flipFirst(e.EvidenceHash) },
		"event_hash":    func(e *Event) { e.EventHash = flipFirst(e.EventHash) },
	}
	for name, mutate := range mutations {
		for idx := range s.chain {
			s.Run(fmt.Sprintf("%s@%d", name, idx), func() {
				chain := make([]*Event, len(s.chain))
				for i, e := range s.chain {
					chain[i] = e.Clone()
				}
				mutate(chain[idx])

				res := Verify(testCID, chain)
				s.False(res.Valid)
				s.Equal(idx, res.FirstDivergence())

				reported := map[int]bool{}
				for _, m := range res.Errors {
					s.GreaterOrEqual(m.Index, idx)
					reported[m.Index] = true
				}
				for i := idx; i < len(chain); i++ {
					s.True(reported[i], "index %d not reported", i)
				}
			})
		}
	}
}

func (s *VerifySuite) TestMismatchCarriesExpectedAndActual() {
	chain := []*Event{s.chain[0].Clone(), s.chain[1].Clone()}
	chain[0].EventHash = "deadbeef"

	res := Verify(testCID, chain)
	s.Require().Len(res.Errors, 2)
	s.Equal(MismatchEventHash, res.Errors[0].Kind)
	s.Equal(s.chain[0].EventHash, res.Errors[0].Expected)
	s.Equal("deadbeef", res.Errors[0].Actual)
	s.Equal(MismatchPreviousLink, res.Errors[1].Kind)
	s.Equal(chain[0].ID, res.Errors[0].EventID)
}

func (s *VerifySuite) TestBrokenLinkAfterDivergence() {
	chain := make([]*Event, len(s.chain))
	for i, e := range s.chain {
		chain[i] = e.Clone()
	}
	chain[1].EventHash = flipFirst(chain[1].EventHash)

	res := Verify(testCID, chain)
	kinds := map[int]MismatchKind{}
	for _, m := range res.Errors {
		if _, ok := kinds[m.Index]; !ok {
			kinds[m.Index] = m.Kind
		}
	}
	s.Equal(MismatchEventHash, kinds[1])
	s.Equal(MismatchPreviousLink, kinds[2])
	s.Equal(MismatchAfterDivergence, kinds[3])
	s.Equal(MismatchAfterDivergence, kinds[4])
}

func flipFirst(h string) string {
	if h[0] == '0' {
		return "1" + h[1:]
	}
	return "0" + h[1:]
}
