package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"bytes"
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
	"cidledger/internal/identity/metrics"
	"cidledger/internal/identity/models"
	"cidledger/internal/identity/service/mocks"
	"cidledger/internal/identity/store"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/sentinel"
	"cidledger/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	auditor *audit.InMemoryStore
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.auditor = audit.NewInMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	hasher, err := models.NewEvidenceHasher([]byte("test-pepper-test-pepper-test-pep"))
	s.Require().NoError(err)
	s.service = New(s.store, hasher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditor(audit.NewPublisher(s.auditor)),
	)
	s.now = time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) verified() *models.Identity {
	identity, err := s.service.CreateVerifiedIdentity(s.ctx, models.EvidenceRefs{
		Provider:    "acme-kyc",
		DocumentRef: "doc-123",
		LivenessRef: "live-456",
	})
	s.Require().NoError(err)
	return identity
}

func (s *ServiceSuite) TestCreateVerifiedIdentity() {
	identity := s.verified()

	s.True(domain.ValidCID(identity.CID.String()))
	s.Equal(models.StatusVerified, identity.Status)
	s.Require().NotNil(identity.VerifiedAt)
	s.Equal(s.now, *identity.VerifiedAt)
	s.Len(identity.IdentityHash, 64)
	s.NotContains(identity.IdentityHash, "doc-123")

	vs, err := s.service.ListVerifications(s.ctx, identity.CID)
	s.Require().NoError(err)
	s.Require().Len(vs, 1)
	s.Equal(models.MethodDocumentLiveness, vs[0].Method)
	s.Equal(models.ResultPassed, vs[0].Result)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.IdentitiesCreated.WithLabelValues("verified")))
	events := s.auditor.All()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionIdentityCreated, events[0].Action)
}

func (s *ServiceSuite) TestCreateClaimedIdentity() {
	identity, err := s.service.CreateClaimedIdentity(s.ctx, models.EvidenceRef{Provider: "selfie", LivenessRef: "live-1"})
	s.Require().NoError(err)
	s.Equal(models.StatusClaimed, identity.Status)
	s.Nil(identity.VerifiedAt)

	vs, err := s.service.ListVerifications(s.ctx, identity.CID)
	s.Require().NoError(err)
	s.Require().Len(vs, 1)
	s.Equal(models.MethodLiveness, vs[0].Method)
	s.Equal(models.ResultClaimed, vs[0].Result)
}

func (s *ServiceSuite) TestCreateRejectsMissingEvidence() {
	tests := []struct {
		name  string
		refs  models.EvidenceRefs
		field string
	}{
		{"provider", models.EvidenceRefs{DocumentRef: "d", LivenessRef: "l"}, "provider"},
		{"document", models.EvidenceRefs{Provider: "p", LivenessRef: "l"}, "document_ref"},
		{"liveness", models.EvidenceRefs{Provider: "p", DocumentRef: "d"}, "liveness_ref"},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			_, err := s.service.CreateVerifiedIdentity(s.ctx, tc.refs)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.Equal(tc.field, dErrors.FieldOf(err))
		})
	}
}

func (s *ServiceSuite) TestCreateFailureIsIdentityCreationError() {
	ctrl := gomock.NewController(s.T())
	mockStore := mocks.NewMockStore(ctrl)
	hasher, _ := models.NewEvidenceHasher(nil)
	svc := New(mockStore, hasher)

	s.Run("collision surfaces as conflict for the caller to retry", func() {
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
		_, err := svc.CreateVerifiedIdentity(s.ctx, models.EvidenceRefs{Provider: "p", DocumentRef: "d", LivenessRef: "l"})
		s.True(dErrors.HasCode(err, dErrors.CodeIdentityCreation))
		s.True(errors.Is(err, &dErrors.Error{Code: dErrors.CodeConflict}))
	})

	s.Run("store failure", func() {
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("tx aborted"))
		_, err := svc.CreateClaimedIdentity(s.ctx, models.EvidenceRef{Provider: "p", LivenessRef: "l"})
		s.True(dErrors.HasCode(err, dErrors.CodeIdentityCreation))
	})

	s.Run("entropy failure", func() {
		broken := New(mockStore, hasher, WithGenerator(domain.NewGenerator(domain.WithRandom(bytes.NewReader(nil)))))
		_, err := broken.CreateClaimedIdentity(s.ctx, models.EvidenceRef{Provider: "p", LivenessRef: "l"})
		s.True(dErrors.HasCode(err, dErrors.CodeIdentityCreation))
	})
}

func (s *ServiceSuite) TestGetByCID() {
	identity := s.verified()

	got, found, err := s.service.GetByCID(s.ctx, identity.CID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(identity.CID, got.CID)

	got, found, err = s.service.GetByCID(s.ctx, "CID-ffffffffffffffff")
	s.NoError(err, "not-found is a normal outcome")
	s.False(found)
	s.Nil(got)

	_, _, err = s.service.GetByCID(s.ctx, "CID-XYZ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestUpdateStatus() {
	identity := s.verified()

	s.Run("same status is a no-op", func() {
		got, err := s.service.UpdateStatus(s.ctx, identity.CID, models.StatusVerified)
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, got.Status)
		s.Len(s.auditor.All(), 1, "only the creation event")
	})

	s.Run("suspend stamps suspended_at", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
		got, err := s.service.UpdateStatus(later, identity.CID, models.StatusSuspended)
		s.Require().NoError(err)
		s.Equal(models.StatusSuspended, got.Status)
		s.Require().NotNil(got.SuspendedAt)
		s.Equal(s.now.Add(time.Hour), *got.SuspendedAt)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusTransitions.WithLabelValues("verified", "suspended")))
	})

	s.Run("backwards transition is rejected", func() {
		_, err := s.service.UpdateStatus(s.ctx, identity.CID, models.StatusVerified)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

		stored, _, _ := s.service.GetByCID(s.ctx, identity.CID)
		s.Equal(models.StatusSuspended, stored.Status)
	})

	s.Run("revoked is terminal", func() {
		_, err := s.service.UpdateStatus(s.ctx, identity.CID, models.StatusRevoked)
		s.Require().NoError(err)
		_, err = s.service.UpdateStatus(s.ctx, identity.CID, models.StatusSuspended)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("unknown identity", func() {
		_, err := s.service.UpdateStatus(s.ctx, "CID-ffffffffffffffff", models.StatusRevoked)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid status", func() {
		_, err := s.service.UpdateStatus(s.ctx, identity.CID, models.Status("frozen"))
		s.Equal("status", dErrors.FieldOf(err))
	})
}

func (s *ServiceSuite) TestAddContact() {
	identity := s.verified()

	first, err := s.service.AddContact(s.ctx, identity.CID, models.ContactEmail, " a@example.com ")
	s.Require().NoError(err)
	s.Equal("a@example.com", first.Value)

	_, err = s.service.AddContact(s.ctx, identity.CID, models.ContactEmail, "b@example.com")
	s.Require().NoError(err)

	contacts, err := s.service.ListContacts(s.ctx, identity.CID)
	s.Require().NoError(err)
	s.Require().Len(contacts, 1)
	s.Equal("b@example.com", contacts[0].Value)

	s.Run("validates by type", func() {
		_, err := s.service.AddContact(s.ctx, identity.CID, models.ContactEmail, "nope")
		s.Equal("value", dErrors.FieldOf(err))
		_, err = s.service.AddContact(s.ctx, identity.CID, models.ContactPhone, "12345")
		s.Equal("value", dErrors.FieldOf(err))
		_, err = s.service.AddContact(s.ctx, identity.CID, models.ContactPhone, "+14155552671")
		s.NoError(err)
		_, err = s.service.AddContact(s.ctx, identity.CID, models.ContactAgent, "Agency Ltd")
		s.NoError(err)
	})

	s.Run("unknown identity", func() {
		_, err := s.service.AddContact(s.ctx, "CID-ffffffffffffffff", models.ContactAgent, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGetManyAndCounts() {
	a := s.verified()
	b, err := s.service.CreateClaimedIdentity(s.ctx, models.EvidenceRef{Provider: "p", LivenessRef: "l"})
	s.Require().NoError(err)

	found, err := s.service.GetMany(s.ctx, []domain.CID{a.CID, b.CID, "CID-ffffffffffffffff"})
	s.Require().NoError(err)
	s.Len(found, 2)

	counts, err := s.service.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Len(counts, 4)
	s.Equal(int64(1), counts[models.StatusVerified])
	s.Equal(int64(1), counts[models.StatusClaimed])
	s.Equal(int64(0), counts[models.StatusRevoked])
}
