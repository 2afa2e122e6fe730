package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cidledger/internal/audit"
	"cidledger/internal/consent/metrics"
	"cidledger/internal/consent/models"
	"cidledger/internal/consent/service/mocks"
	"cidledger/internal/consent/store"
	idmodels "cidledger/internal/identity/models"
	idservice "cidledger/internal/identity/service"
	idstore "cidledger/internal/identity/store"
	"cidledger/internal/platform/kafka/producer"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/sentinel"
	"cidledger/pkg/requestcontext"
	fixtures "cidledger/pkg/testutil"
)

type capturingProducer struct {
	producer.NoopProducer
	mu       sync.Mutex
	messages []*producer.Message
}

func (p *capturingProducer) ProduceAsync(msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	identities *idstore.InMemoryStore
	auditor    *audit.InMemoryStore
	metrics    *metrics.Metrics
	producer   *capturingProducer
	service    *Service
	ctx        context.Context
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.identities = idstore.NewInMemory()
	s.auditor = audit.NewInMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.producer = &capturingProducer{}
	s.service = s.newService(s.store)
	s.now = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) newService(st Store, opts ...Option) *Service {
	hasher, err := idmodels.NewEvidenceHasher([]byte("consent-test-pepper"))
	s.Require().NoError(err)
	reader := idservice.New(s.identities, hasher)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditor(audit.NewPublisher(s.auditor)),
		WithPublisher(s.producer, "consent.events"),
	}
	return New(st, reader, append(base, opts...)...)
}

func (s *ServiceSuite) identity(status idmodels.Status) domain.CID {
	identity := fixtures.NewIdentityBuilder().WithStatus(status).Build()
	s.Require().NoError(s.identities.Create(context.Background(), identity, nil))
	return identity.CID
}

func (s *ServiceSuite) appendEvent(cid domain.CID, t models.EventType, scope *models.Scope) *models.Event {
	e, err := s.service.Append(s.ctx, models.AppendRequest{
		CID:        cid,
		EventType:  t,
		Scope:      scope,
		Source:     models.SourceDashboard,
		Provenance: models.Provenance{IPAddress: "198.51.100.7", UserAgent: "Mozilla/5.0"},
	})
	s.Require().NoError(err)
	return e
}

func (s *ServiceSuite) TestAppendBuildsLinkedChain() {
	cid := s.identity(idmodels.StatusVerified)
	first := s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())
	second := s.appendEvent(cid, models.EventModify, fixtures.NewScopeBuilder().Deny("editorial").Build())

	s.Equal(int64(1), first.Sequence)
	s.Nil(first.PreviousEventID)
	s.Equal(int64(2), second.Sequence)
	s.Equal(first.ID, *second.PreviousEventID)
	s.Equal(first.EventHash, *second.PreviousEventHash)
	s.Equal(s.now, first.RecordedAt)

	res, err := s.service.VerifyChain(s.ctx, cid)
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(2, res.EventsCount)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.EventsAppended.WithLabelValues("grant")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.ChainVerifications.WithLabelValues("valid")))
}

func (s *ServiceSuite) TestAppendPublishesKeyedByCID() {
	cid := s.identity(idmodels.StatusVerified)
	e := s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())

	s.Require().Len(s.producer.messages, 1)
	msg := s.producer.messages[0]
	s.Equal("consent.events", msg.Topic)
	s.Equal([]byte(cid), msg.Key)
	s.Equal("grant", msg.Headers["event_type"])
	s.Contains(string(msg.Value), e.EventHash)
}

func (s *ServiceSuite) TestAppendEmitsAudit() {
	cid := s.identity(idmodels.StatusVerified)
	e := s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())

	events, err := s.auditor.ListByCID(s.ctx, cid.String(), audit.ListFilter{Action: audit.ActionConsentAppended})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(e.ID.String(), events[0].Attributes["event_id"])
	s.Equal("grant", events[0].Decision)
}

func (s *ServiceSuite) TestRecordedAtNeverMovesBackwards() {
	cid := s.identity(idmodels.StatusVerified)
	first := s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())

	s.ctx = requestcontext.WithTime(context.Background(), s.now.Add(-time.Hour))
	second := s.appendEvent(cid, models.EventRevoke, nil)
	s.Equal(first.RecordedAt, second.RecordedAt)

	history, err := s.service.GetHistory(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal([]domain.EventID{first.ID, second.ID}, []domain.EventID{history[0].ID, history[1].ID})
}

func (s *ServiceSuite) TestValidationHappensBeforeStore() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl) // no expectations: any call fails the test
	svc := New(st, mocks.NewMockIdentityReader(ctrl))

	cases := []struct {
		name  string
		req   models.AppendRequest
		field string
	}{
		{"malformed cid", models.AppendRequest{CID: "CID-XYZ", EventType: models.EventRevoke, Source: models.SourceAPI}, "cid"},
		{"unknown event type", models.AppendRequest{CID: fixtures.NextCID(), EventType: "erase", Source: models.SourceAPI}, "event_type"},
		{"unknown source", models.AppendRequest{CID: fixtures.NextCID(), EventType: models.EventRevoke, Source: "email"}, "source"},
		{"grant without scope", models.AppendRequest{CID: fixtures.NextCID(), EventType: models.EventGrant, Source: models.SourceAPI}, "consent_scope"},
		{"bad ip", models.AppendRequest{
			CID: fixtures.NextCID(), EventType: models.EventRevoke, Source: models.SourceAPI,
			Provenance: models.Provenance{IPAddress: "not-an-ip"},
		}, "ip_address"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.Append(s.ctx, tc.req)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), err.Error())
			s.Equal(tc.field, dErrors.FieldOf(err))
		})
	}
}

func (s *ServiceSuite) TestAppendForUnknownIdentity() {
	_, err := s.service.Append(s.ctx, models.AppendRequest{
		CID: fixtures.NextCID(), EventType: models.EventRevoke, Source: models.SourceAPI,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestInactiveIdentityAcceptsOnlyRevoke() {
	for _, status := range []idmodels.Status{idmodels.StatusSuspended, idmodels.StatusRevoked} {
		s.Run(string(status), func() {
			cid := s.identity(status)
			_, err := s.service.Append(s.ctx, models.AppendRequest{
				CID: cid, EventType: models.EventGrant, Source: models.SourceAdmin,
				Scope: fixtures.NewScopeBuilder().Allow("commercial").Build(),
			})
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

			e := s.appendEvent(cid, models.EventRevoke, fixtures.NewScopeBuilder().Reason("account closed").Build())
			s.Equal(models.EventRevoke, e.EventType)
		})
	}
}

func (s *ServiceSuite) TestConflictIsReportedNotRetried() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc := s.newService(st)
	cid := s.identity(idmodels.StatusVerified)

	st.EXPECT().Head(gomock.Any(), cid).Return(nil, sentinel.ErrNotFound).Times(1)
	st.EXPECT().Append(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict).Times(1)

	_, err := svc.Append(s.ctx, models.AppendRequest{CID: cid, EventType: models.EventRevoke, Source: models.SourceAPI})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.AppendConflicts))
	s.Empty(s.producer.messages, "nothing is published for a failed append")
}

func (s *ServiceSuite) TestStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	svc := s.newService(st)
	cid := s.identity(idmodels.StatusVerified)

	st.EXPECT().Head(gomock.Any(), cid).Return(nil, io.ErrUnexpectedEOF)

	_, err := svc.Append(s.ctx, models.AppendRequest{CID: cid, EventType: models.EventRevoke, Source: models.SourceAPI})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, io.ErrUnexpectedEOF)
}

func (s *ServiceSuite) TestConcurrentAppendsNeverFork() {
	cid := s.identity(idmodels.StatusVerified)
	s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())

	result := fixtures.RunConcurrent(40, func(idx int) error {
		scope := fixtures.NewScopeBuilder().Allow("commercial").Build()
		eventType := models.EventModify
		if idx%2 == 1 {
			eventType = models.EventRestrict
		}
		_, err := s.service.Append(s.ctx, models.AppendRequest{
			CID: cid, EventType: eventType, Scope: scope, Source: models.SourceAPI,
		})
		return err
	})
	s.Equal(int32(40), result.Successes, "unexpected errors: %v", result.Unexpected)

	history, err := s.service.GetHistory(s.ctx, cid)
	s.Require().NoError(err)
	s.Len(history, 41)
	for i, e := range history {
		s.Equal(int64(i+1), e.Sequence)
	}
	res, err := s.service.VerifyChain(s.ctx, cid)
	s.Require().NoError(err)
	s.True(res.Valid)
}

func (s *ServiceSuite) TestGetHistoryOfUnknownCIDIsEmpty() {
	history, err := s.service.GetHistory(s.ctx, fixtures.NextCID())
	s.Require().NoError(err)
	s.Empty(history)

	_, err = s.service.GetHistory(s.ctx, "bogus")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestVerifyChainReportsTampering() {
	cid := s.identity(idmodels.StatusVerified)
	s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())
	s.appendEvent(cid, models.EventModify, fixtures.NewScopeBuilder().Allow("editorial").Build())
	s.appendEvent(cid, models.EventRevoke, nil)

	history, err := s.store.ListByCID(s.ctx, cid)
	s.Require().NoError(err)
	history[1].Scope.UseTypes["editorial"] = false

	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().ListByCID(gomock.Any(), cid).Return(history, nil)
	svc := s.newService(st)

	res, err := svc.VerifyChain(s.ctx, cid)
	s.Require().NoError(err, "integrity failures are data, not errors")
	s.False(res.Valid)
	s.Equal(1, res.FirstDivergence())
	for _, m := range res.Errors {
		s.GreaterOrEqual(m.Index, 1)
	}

	audits, err := s.auditor.ListByCID(s.ctx, cid.String(), audit.ListFilter{Action: audit.ActionChainVerified})
	s.Require().NoError(err)
	s.Require().Len(audits, 1)
	s.Equal("invalid", audits[0].Decision)
}

func (s *ServiceSuite) TestVerifyEmptyChain() {
	res, err := s.service.VerifyChain(s.ctx, fixtures.NextCID())
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Zero(res.EventsCount)
}

func (s *ServiceSuite) TestDeriveCurrentConsent() {
	s.Run("no events is null", func() {
		scope, err := s.service.DeriveCurrentConsent(s.ctx, s.identity(idmodels.StatusVerified))
		s.Require().NoError(err)
		s.Nil(scope)
	})

	s.Run("grant then revoke is null", func() {
		cid := s.identity(idmodels.StatusVerified)
		s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())
		s.appendEvent(cid, models.EventRevoke, nil)
		scope, err := s.service.DeriveCurrentConsent(s.ctx, cid)
		s.Require().NoError(err)
		s.Nil(scope)
	})

	s.Run("reinstate yields exactly its scope", func() {
		cid := s.identity(idmodels.StatusVerified)
		reinstated := fixtures.NewScopeBuilder().Allow("editorial").Modality("voice", false).Build()
		s.appendEvent(cid, models.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())
		s.appendEvent(cid, models.EventRevoke, nil)
		s.appendEvent(cid, models.EventReinstate, reinstated)
		scope, err := s.service.DeriveCurrentConsent(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(reinstated, scope)
	})
}

func (s *ServiceSuite) TestDerivedCache() {
	ctrl := gomock.NewController(s.T())
	cache := mocks.NewMockDerivedCache(ctrl)
	svc := s.newService(s.store, WithCache(cache))
	cid := s.identity(idmodels.StatusVerified)
	granted := fixtures.NewScopeBuilder().Allow("commercial").Build()

	cache.EXPECT().Invalidate(gomock.Any(), cid).Return(nil)
	grant, err := svc.Append(s.ctx, models.AppendRequest{CID: cid, EventType: models.EventGrant, Scope: granted, Source: models.SourceAPI})
	s.Require().NoError(err)

	s.Run("miss replays and stores against the head", func() {
		cache.EXPECT().Get(gomock.Any(), cid, grant.ID).Return(nil, false, nil)
		cache.EXPECT().Set(gomock.Any(), cid, grant.ID, granted).Return(nil)
		scope, err := svc.DeriveCurrentConsent(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(granted, scope)
	})

	s.Run("hit is served", func() {
		cached := fixtures.NewScopeBuilder().Allow("cached").Build()
		cache.EXPECT().Get(gomock.Any(), cid, grant.ID).Return(cached, true, nil)
		scope, err := svc.DeriveCurrentConsent(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(cached, scope)
	})

	s.Run("cache failure falls back to replay", func() {
		cache.EXPECT().Get(gomock.Any(), cid, grant.ID).Return(nil, false, io.ErrClosedPipe)
		cache.EXPECT().Set(gomock.Any(), cid, grant.ID, granted).Return(io.ErrClosedPipe)
		scope, err := svc.DeriveCurrentConsent(s.ctx, cid)
		s.Require().NoError(err)
		s.Equal(granted, scope)
	})
}

func (s *ServiceSuite) TestShardedTxHonoursCancellation() {
	tx := NewShardedTx(s.store, mocks.NewMockIdentityReader(gomock.NewController(s.T())), nil)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	called := false
	err := tx.RunInTx(ctx, fixtures.NextCID(), func(context.Context, Store, IdentityReader) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

func (s *ServiceSuite) TestLockedIdentityAnswersOnlyItsCID() {
	identity := fixtures.NewIdentityBuilder().WithStatus(idmodels.StatusSuspended).Build()
	reader := lockedIdentity{cid: identity.CID, identity: identity}

	got, found, err := reader.GetByCID(s.ctx, identity.CID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(idmodels.StatusSuspended, got.Status)
	got.Status = idmodels.StatusVerified
	s.Equal(idmodels.StatusSuspended, identity.Status, "callers get a copy")

	_, found, err = reader.GetByCID(s.ctx, fixtures.NextCID())
	s.Require().NoError(err)
	s.False(found)

	_, found, _ = lockedIdentity{cid: identity.CID}.GetByCID(s.ctx, identity.CID)
	s.False(found, "no locked row means the CID is unregistered")
}
