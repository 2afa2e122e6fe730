//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cidledger/internal/consent/models"
	"cidledger/internal/consent/store"
	idstore "cidledger/internal/identity/store"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/sentinel"
	"cidledger/pkg/testutil"
	"cidledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	store      *store.PostgresStore
	identities *idstore.PostgresStore
	ctx        context.Context
	now        time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.identities = idstore.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(s.ctx))
	s.now = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) identity() domain.CID {
	identity := testutil.NewIdentityBuilder().Build()
	s.Require().NoError(s.identities.Create(s.ctx, identity, nil))
	return identity.CID
}

func (s *PostgresStoreSuite) next(head *models.Event, cid domain.CID, t models.EventType, scope *models.Scope) *models.Event {
	e, err := models.NextEvent(head, models.AppendRequest{
		CID:        cid,
		EventType:  t,
		Scope:      scope,
		Source:     models.SourceDashboard,
		Provenance: models.Provenance{IPAddress: "192.0.2.10", UserAgent: "Mozilla/5.0"},
	}, s.now)
	s.Require().NoError(err)
	s.now = s.now.Add(time.Second)
	return e
}

func (s *PostgresStoreSuite) TestRoundTripPreservesHashes() {
	cid := s.identity()
	scope := testutil.NewScopeBuilder().
		Allow("commercial").Deny("editorial").
		Modality("voice", false).
		Blocklist("eu", "CN").
		Exclude("politics").
		Window(s.now.Add(-time.Hour), s.now.Add(24*time.Hour), true).
		Build()

	first := s.next(nil, cid, models.EventGrant, scope)
	s.Require().NoError(s.store.Append(s.ctx, first))
	second := s.next(first, cid, models.EventRevoke, &models.Scope{RevocationReason: "opt out"})
	s.Require().NoError(s.store.Append(s.ctx, second))
	third := s.next(second, cid, models.EventRevoke, nil)
	s.Require().NoError(s.store.Append(s.ctx, third))

	history, err := s.store.ListByCID(s.ctx, cid)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Nil(history[2].Scope)

	res := models.Verify(cid, history)
	s.True(res.Valid, "%+v", res.Errors)
	s.Equal(scope.UseTypes, history[0].Scope.UseTypes)
	s.Equal([]string{"CN", "EU"}, history[0].Scope.GeographicScope.Regions)
	s.True(history[0].Scope.Temporal.ValidFrom.Equal(scope.Temporal.ValidFrom))

	head, err := s.store.Head(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal(third.ID, head.ID)
}

func (s *PostgresStoreSuite) TestForkGuards() {
	cid := s.identity()
	first := s.next(nil, cid, models.EventGrant, testutil.NewScopeBuilder().Allow("commercial").Build())
	s.Require().NoError(s.store.Append(s.ctx, first))

	a := s.next(first, cid, models.EventModify, testutil.NewScopeBuilder().Allow("editorial").Build())
	b := s.next(first, cid, models.EventModify, testutil.NewScopeBuilder().Allow("e-learning").Build())
	s.Require().NoError(s.store.Append(s.ctx, a))
	s.ErrorIs(s.store.Append(s.ctx, b), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUnknownIdentity() {
	e := s.next(nil, testutil.NextCID(), models.EventRevoke, nil)
	s.ErrorIs(s.store.Append(s.ctx, e), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAppendOnlyTrigger() {
	cid := s.identity()
	s.Require().NoError(s.store.Append(s.ctx, s.next(nil, cid, models.EventRevoke, nil)))

	_, err := s.postgres.Exec(s.ctx, `UPDATE consent_events SET ip_address = '0.0.0.0' WHERE cid = $1`, string(cid))
	s.Error(err)
	_, err = s.postgres.Exec(s.ctx, `DELETE FROM consent_events WHERE cid = $1`, string(cid))
	s.Error(err)
}

func (s *PostgresStoreSuite) TestTamperIsDetected() {
	cid := s.identity()
	var head *models.Event
	for _, t := range []models.EventType{models.EventGrant, models.EventModify, models.EventRestrict} {
		head = s.next(head, cid, t, testutil.NewScopeBuilder().Allow("commercial").Build())
		s.Require().NoError(s.store.Append(s.ctx, head))
	}

	restore := s.postgres.DisableAppendOnly(s.ctx, s.T())
	_, err := s.postgres.Exec(s.ctx, `
		UPDATE consent_events
		SET consent_scope = jsonb_set(consent_scope, '{use_types,commercial}', 'false')
		WHERE cid = $1 AND sequence = 2
	`, string(cid))
	s.Require().NoError(err)
	restore()

	history, err := s.store.ListByCID(s.ctx, cid)
	s.Require().NoError(err)
	res := models.Verify(cid, history)
	s.False(res.Valid)
	s.Equal(1, res.FirstDivergence())
}

func (s *PostgresStoreSuite) TestBatchAndCounts() {
	active, revoked, modifiedOnly := s.identity(), s.identity(), s.identity()
	g := s.next(nil, active, models.EventGrant, testutil.NewScopeBuilder().Allow("commercial").Build())
	s.Require().NoError(s.store.Append(s.ctx, g))
	s.Require().NoError(s.store.Append(s.ctx, s.next(g, active, models.EventModify, testutil.NewScopeBuilder().Allow("editorial").Build())))
	s.Require().NoError(s.store.Append(s.ctx, s.next(nil, modifiedOnly, models.EventModify, testutil.NewScopeBuilder().Allow("commercial").Build())))
	g2 := s.next(nil, revoked, models.EventGrant, testutil.NewScopeBuilder().Allow("commercial").Build())
	s.Require().NoError(s.store.Append(s.ctx, g2))
	s.Require().NoError(s.store.Append(s.ctx, s.next(g2, revoked, models.EventRevoke, nil)))

	chains, err := s.store.ListByCIDs(s.ctx, []domain.CID{active, revoked, testutil.NextCID()})
	s.Require().NoError(err)
	s.Len(chains, 2)
	s.Len(chains[revoked], 2)

	n, err := s.store.CountEvents(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(5), n)

	states, err := s.store.CountConsentStates(s.ctx)
	s.Require().NoError(err)
	s.Equal(store.ConsentStates{Active: 1, Revoked: 2}, states, "a chain without grant or reinstate replays to null")
}
