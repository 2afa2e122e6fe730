package oracle

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cidledger/internal/audit"
	consentmodels "cidledger/internal/consent/models"
	consentservice "cidledger/internal/consent/service"
	consentstore "cidledger/internal/consent/store"
	idmodels "cidledger/internal/identity/models"
	idservice "cidledger/internal/identity/service"
	idstore "cidledger/internal/identity/store"
	"cidledger/internal/oracle/metrics"
	"cidledger/internal/oracle/mocks"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/requestcontext"
	fixtures "cidledger/pkg/testutil"
)

// CheckOrderSuite pins the short-circuit order with mocked ports.
type CheckOrderSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	identities *mocks.MockIdentityReader
	consent    *mocks.MockConsentReader
	metrics    *metrics.Metrics
	service    *Service
	ctx        context.Context
	cid        domain.CID
}

func TestCheckOrderSuite(t *testing.T) {
	suite.Run(t, new(CheckOrderSuite))
}

func (s *CheckOrderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.identities = mocks.NewMockIdentityReader(s.ctrl)
	s.consent = mocks.NewMockConsentReader(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = New(s.identities, s.consent,
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	s.cid = fixtures.NextCID()
}

func (s *CheckOrderSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CheckOrderSuite) activeIdentity() *idmodels.Identity {
	return fixtures.NewIdentityBuilder().WithCID(s.cid).Build()
}

func (s *CheckOrderSuite) TestMalformedCIDRejectedBeforeLookup() {
	_, err := s.service.Check(s.ctx, CheckRequest{CID: "cid-123"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("cid", dErrors.FieldOf(err))
}

func (s *CheckOrderSuite) TestUnknownIdentitySkipsConsent() {
	s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(nil, false, nil)

	result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid, UseType: "commercial"})
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(consentmodels.ConsentNotFound, result.ConsentStatus)
	s.Equal(ReasonIdentityNotFound, result.Reason)
	s.Empty(result.IdentityStatus)
}

func (s *CheckOrderSuite) TestInactiveIdentityDeniesBeforeReplay() {
	for _, status := range []idmodels.Status{idmodels.StatusSuspended, idmodels.StatusRevoked} {
		s.Run(string(status), func() {
			identity := fixtures.NewIdentityBuilder().WithCID(s.cid).WithStatus(status).Build()
			s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(identity, true, nil)

			result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid})
			s.Require().NoError(err)
			s.False(result.Allowed)
			s.Equal(consentmodels.ConsentRevoked, result.ConsentStatus)
			s.Equal(ReasonIdentityInactive, result.Reason)
			s.Equal(string(status), result.IdentityStatus)
		})
	}
}

func (s *CheckOrderSuite) TestRevokedConsentSkipsVerification() {
	s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(s.activeIdentity(), true, nil)
	s.consent.EXPECT().DeriveCurrentConsent(gomock.Any(), s.cid).Return(nil, nil)

	result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid, VerifyIntegrity: true})
	s.Require().NoError(err)
	s.Equal(ReasonConsentRevoked, result.Reason)
	s.Nil(result.ChainVerified)
}

func (s *CheckOrderSuite) TestIntegrityFailureDeniesAsActive() {
	s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(s.activeIdentity(), true, nil)
	s.consent.EXPECT().DeriveCurrentConsent(gomock.Any(), s.cid).
		Return(fixtures.NewScopeBuilder().Allow("commercial").Build(), nil)
	s.consent.EXPECT().VerifyChain(gomock.Any(), s.cid).Return(&consentmodels.VerifyResult{
		CID:         s.cid,
		Valid:       false,
		EventsCount: 2,
		Errors:      []consentmodels.Mismatch{{Index: 1, Kind: consentmodels.MismatchEventHash}},
	}, nil)

	result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid, UseType: "commercial", VerifyIntegrity: true})
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(consentmodels.ConsentActive, result.ConsentStatus)
	s.Equal(ReasonChainIntegrity, result.Reason)
	s.Require().NotNil(result.ChainVerified)
	s.False(*result.ChainVerified)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IntegrityFailures))
}

func (s *CheckOrderSuite) TestVerifiedChainIsRecorded() {
	s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(s.activeIdentity(), true, nil)
	s.consent.EXPECT().DeriveCurrentConsent(gomock.Any(), s.cid).
		Return(fixtures.NewScopeBuilder().Allow("commercial").Build(), nil)
	s.consent.EXPECT().VerifyChain(gomock.Any(), s.cid).
		Return(&consentmodels.VerifyResult{CID: s.cid, Valid: true, EventsCount: 1}, nil)

	result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid, UseType: "Commercial", VerifyIntegrity: true})
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal("commercial", result.UseType)
	s.Require().NotNil(result.ChainVerified)
	s.True(*result.ChainVerified)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Checks.WithLabelValues("allowed", string(ReasonAllowed))))
}

func (s *CheckOrderSuite) TestReadFailureIsAnError() {
	s.identities.EXPECT().GetByCID(gomock.Any(), s.cid).Return(s.activeIdentity(), true, nil)
	s.consent.EXPECT().DeriveCurrentConsent(gomock.Any(), s.cid).Return(nil, errors.New("connection refused"))

	result, err := s.service.Check(s.ctx, CheckRequest{CID: s.cid})
	s.Nil(result)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// ScenarioSuite runs the oracle against the real registry and consent chain.
type ScenarioSuite struct {
	suite.Suite
	identities *idstore.InMemoryStore
	registry   *idservice.Service
	consent    *consentservice.Service
	auditStore *audit.InMemoryStore
	oracle     *Service
	ctx        context.Context
	now        time.Time
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

func (s *ScenarioSuite) SetupTest() {
	hasher, err := idmodels.NewEvidenceHasher([]byte("oracle-test-pepper"))
	s.Require().NoError(err)
	s.identities = idstore.NewInMemory()
	s.registry = idservice.New(s.identities, hasher)
	s.consent = consentservice.New(consentstore.NewInMemory(), s.registry)
	s.auditStore = audit.NewInMemoryStore()
	s.oracle = New(s.registry, s.consent, WithAuditor(audit.NewPublisher(s.auditStore)))
	s.now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ScenarioSuite) newIdentity() domain.CID {
	identity := fixtures.NewIdentityBuilder().Build()
	s.Require().NoError(s.identities.Create(s.ctx, identity, nil))
	return identity.CID
}

func (s *ScenarioSuite) append(cid domain.CID, eventType consentmodels.EventType, scope *consentmodels.Scope) {
	_, err := s.consent.Append(s.ctx, consentmodels.AppendRequest{
		CID:       cid,
		EventType: eventType,
		Scope:     scope,
		Source:    consentmodels.SourceAPI,
	})
	s.Require().NoError(err)
}

func (s *ScenarioSuite) check(req CheckRequest) *CheckResult {
	result, err := s.oracle.Check(s.ctx, req)
	s.Require().NoError(err)
	return result
}

func (s *ScenarioSuite) TestNeverCreated() {
	result := s.check(CheckRequest{CID: fixtures.NextCID()})
	s.False(result.Allowed)
	s.Equal(consentmodels.ConsentNotFound, result.ConsentStatus)
}

func (s *ScenarioSuite) TestGrantThenRevoke() {
	cid := s.newIdentity()
	s.append(cid, consentmodels.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())

	result := s.check(CheckRequest{CID: cid, UseType: "commercial"})
	s.True(result.Allowed)
	s.Equal(consentmodels.ConsentActive, result.ConsentStatus)
	s.Equal(s.now, result.CheckedAt)

	s.append(cid, consentmodels.EventRevoke, nil)
	result = s.check(CheckRequest{CID: cid, UseType: "commercial"})
	s.False(result.Allowed)
	s.Equal(consentmodels.ConsentRevoked, result.ConsentStatus)

	audits, err := s.auditStore.ListByCID(s.ctx, cid.String(), audit.ListFilter{Action: audit.ActionConsentChecked})
	s.Require().NoError(err)
	s.Len(audits, 2)
}

func (s *ScenarioSuite) TestBlocklistRegion() {
	cid := s.newIdentity()
	s.append(cid, consentmodels.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Blocklist("EU").Build())

	s.False(s.check(CheckRequest{CID: cid, Region: "EU"}).Allowed)
	allowed := s.check(CheckRequest{CID: cid, Region: "US"})
	s.True(allowed.Allowed)
	s.Equal("US", allowed.Region)
}

func (s *ScenarioSuite) TestExpiredWindowDeniesRegardless() {
	cid := s.newIdentity()
	from := s.now.AddDate(-1, 0, 0)
	s.append(cid, consentmodels.EventGrant, fixtures.NewScopeBuilder().
		Allow("commercial", "research").
		Modality("voice", true).
		Window(from, s.now.AddDate(0, -1, 0), false).
		Build())

	result := s.check(CheckRequest{CID: cid, UseType: "commercial", Modality: "voice", Region: "US"})
	s.False(result.Allowed)
	s.Equal(ReasonExpired, result.Reason)
	s.Equal(consentmodels.ConsentActive, result.ConsentStatus)
}

func (s *ScenarioSuite) TestIntegrityCheckOnCleanChain() {
	cid := s.newIdentity()
	s.append(cid, consentmodels.EventGrant, fixtures.NewScopeBuilder().Allow("commercial").Build())
	s.append(cid, consentmodels.EventRestrict, fixtures.NewScopeBuilder().Deny("commercial").Build())

	result := s.check(CheckRequest{CID: cid, UseType: "commercial", VerifyIntegrity: true})
	s.Require().NotNil(result.ChainVerified)
	s.True(*result.ChainVerified)
	s.False(result.Allowed)
	s.Equal(ReasonUseTypeNotGranted, result.Reason)
}
