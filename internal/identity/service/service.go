package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cidledger/internal/audit"
	"cidledger/internal/identity/metrics"
	"cidledger/internal/identity/models"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/sentinel"
	"cidledger/pkg/platform/validation"
	"cidledger/pkg/requestcontext"
	v "cidledger/pkg/validation"
)

// Store defines the persistence interface for the identity registry.
// Error Contract:
//   - FindByCID and Execute return sentinel.ErrNotFound for unknown CIDs
//   - Create returns sentinel.ErrConflict when the CID is already taken
//   - UpsertContact returns sentinel.ErrNotFound when the identity is missing
type Store interface {
	Create(ctx context.Context, identity *models.Identity, verification *models.Verification) error
	FindByCID(ctx context.Context, cid domain.CID) (*models.Identity, error)
	FindMany(ctx context.Context, cids []domain.CID) (map[domain.CID]*models.Identity, error)
	Execute(ctx context.Context, cid domain.CID, validate func(*models.Identity) error, mutate func(*models.Identity) bool) (*models.Identity, error)
	UpsertContact(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	ListVerifications(ctx context.Context, cid domain.CID) ([]*models.Verification, error)
	ListContacts(ctx context.Context, cid domain.CID) ([]*models.Contact, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

type Option func(*Service)

// Service owns identity lifecycle: creation, status transitions and contacts.
type Service struct {
	store     Store
	hasher    *models.EvidenceHasher
	generator *domain.Generator
	auditor   audit.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(store Store, hasher *models.EvidenceHasher, opts ...Option) *Service {
	svc := &Service{
		store:     store,
		hasher:    hasher,
		generator: domain.NewGenerator(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditor(a audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithGenerator overrides CID generation (deterministic tests).
func WithGenerator(g *domain.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// CreateVerifiedIdentity creates a verified identity together with one
// document_liveness/passed Verification. Either both rows commit or neither.
func (s *Service) CreateVerifiedIdentity(ctx context.Context, refs models.EvidenceRefs) (*models.Identity, error) {
	if err := validateVerifiedRefs(refs); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	seed := refs.Seed
	if seed == "" {
		seed = refs.Provider + "|" + refs.DocumentRef
	}
	identity, err := s.newIdentity(seed, models.StatusVerified, s.hasher.IdentityHash(refs.Provider, refs.DocumentRef, refs.LivenessRef), now)
	if err != nil {
		return nil, err
	}
	verification := &models.Verification{
		ID:           domain.NewVerificationID(),
		CID:          identity.CID,
		Method:       models.MethodDocumentLiveness,
		Provider:     refs.Provider,
		Result:       models.ResultPassed,
		EvidenceHash: s.hasher.VerificationHash(models.MethodDocumentLiveness, refs.Provider, refs.DocumentRef, refs.LivenessRef),
		CreatedAt:    now,
	}
	return s.create(ctx, identity, verification)
}

// CreateClaimedIdentity creates a self-asserted identity with a weaker
// liveness/claimed Verification.
func (s *Service) CreateClaimedIdentity(ctx context.Context, ref models.EvidenceRef) (*models.Identity, error) {
	if err := validateClaimedRef(ref); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	seed := ref.Seed
	if seed == "" {
		seed = ref.Provider + "|" + ref.LivenessRef
	}
	identity, err := s.newIdentity(seed, models.StatusClaimed, s.hasher.IdentityHash(ref.Provider, "", ref.LivenessRef), now)
	if err != nil {
		return nil, err
	}
	verification := &models.Verification{
		ID:           domain.NewVerificationID(),
		CID:          identity.CID,
		Method:       models.MethodLiveness,
		Provider:     ref.Provider,
		Result:       models.ResultClaimed,
		EvidenceHash: s.hasher.VerificationHash(models.MethodLiveness, ref.Provider, ref.LivenessRef),
		CreatedAt:    now,
	}
	return s.create(ctx, identity, verification)
}

func (s *Service) newIdentity(seed string, status models.Status, identityHash string, now time.Time) (*models.Identity, error) {
	cid, err := s.generator.Generate(seed)
	if err != nil {
		return nil, dErrors.WrapAs(err, dErrors.CodeIdentityCreation, "failed to generate CID")
	}
	identity := &models.Identity{
		CID:          cid,
		Status:       status,
		IdentityHash: identityHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == models.StatusVerified {
		identity.VerifiedAt = &now
	}
	return identity, nil
}

func (s *Service) create(ctx context.Context, identity *models.Identity, verification *models.Verification) (*models.Identity, error) {
	start := time.Now()
	err := s.store.Create(ctx, identity, verification)
	s.observeStoreLatency("create", start)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Collisions are reported, not retried: the caller decides.
			return nil, dErrors.WrapAs(dErrors.New(dErrors.CodeConflict, "CID already assigned"),
				dErrors.CodeIdentityCreation, "identity creation failed: CID collision, retry")
		}
		return nil, dErrors.WrapAs(err, dErrors.CodeIdentityCreation, "identity creation failed")
	}

	if s.metrics != nil {
		s.metrics.IncrementIdentitiesCreated(string(identity.Status))
	}
	s.emitAudit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		CID:      identity.CID.String(),
		Action:   audit.ActionIdentityCreated,
		Decision: string(identity.Status),
		Attributes: map[string]string{
			"verification_method": string(verification.Method),
			"provider":            verification.Provider,
		},
	})
	s.logInfo(ctx, "identity created", "cid", identity.CID, "status", identity.Status)
	return identity, nil
}

// GetByCID returns (nil, false, nil) when the identity does not exist.
func (s *Service) GetByCID(ctx context.Context, cid domain.CID) (*models.Identity, bool, error) {
	if !domain.ValidCID(string(cid)) {
		return nil, false, dErrors.Invalid("cid", "must match CID-<16 lowercase hex>")
	}
	identity, err := s.store.FindByCID(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identity")
	}
	return identity, true, nil
}

// GetMany reads several identities in one batched store call. Missing CIDs
// are simply absent from the result.
func (s *Service) GetMany(ctx context.Context, cids []domain.CID) (map[domain.CID]*models.Identity, error) {
	start := time.Now()
	found, err := s.store.FindMany(ctx, cids)
	s.observeStoreLatency("find_many", start)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identities")
	}
	return found, nil
}

// UpdateStatus applies a monotonic status transition under a row lock.
// Requesting the current status again returns the identity unchanged.
func (s *Service) UpdateStatus(ctx context.Context, cid domain.CID, next models.Status) (*models.Identity, error) {
	if !domain.ValidCID(string(cid)) {
		return nil, dErrors.Invalid("cid", "must match CID-<16 lowercase hex>")
	}
	if !next.IsValid() {
		return nil, dErrors.Invalid("status", "must be one of claimed, verified, suspended, revoked")
	}

	now := requestcontext.Now(ctx).UTC()
	var previous models.Status
	updated, err := s.store.Execute(ctx, cid,
		func(current *models.Identity) error {
			previous = current.Status
			if current.Status == next {
				return nil
			}
			if !current.Status.CanTransitionTo(next) {
				return dErrors.New(dErrors.CodeInvalidTransition,
					fmt.Sprintf("cannot move identity from %s to %s", current.Status, next))
			}
			return nil
		},
		func(current *models.Identity) bool {
			if current.Status == next {
				return false
			}
			current.ApplyStatus(next, now)
			return true
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update identity status")
	}

	if previous == next {
		return updated, nil
	}
	if s.metrics != nil {
		s.metrics.IncrementStatusTransition(string(previous), string(next))
	}
	s.emitAudit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		CID:      cid.String(),
		Action:   audit.ActionIdentityStatusChanged,
		Decision: string(next),
		Reason:   string(previous) + "->" + string(next),
	})
	s.logInfo(ctx, "identity status changed", "cid", cid, "from", previous, "to", next)
	return updated, nil
}

// AddContact upserts the single value held for (cid, type).
func (s *Service) AddContact(ctx context.Context, cid domain.CID, contactType models.ContactType, value string) (*models.Contact, error) {
	if !domain.ValidCID(string(cid)) {
		return nil, dErrors.Invalid("cid", "must match CID-<16 lowercase hex>")
	}
	value = strings.TrimSpace(value)
	if err := validateContact(contactType, value); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	contact, err := s.store.UpsertContact(ctx, &models.Contact{
		CID:       cid,
		Type:      contactType,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save contact")
	}

	if s.metrics != nil {
		s.metrics.IncrementContactsUpserted(string(contactType))
	}
	s.emitAudit(ctx, audit.Event{
		CID:    cid.String(),
		Action: audit.ActionContactUpserted,
		Attributes: map[string]string{
			"type": string(contactType),
		},
	})
	return contact, nil
}

func (s *Service) ListVerifications(ctx context.Context, cid domain.CID) ([]*models.Verification, error) {
	out, err := s.store.ListVerifications(ctx, cid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return out, nil
}

func (s *Service) ListContacts(ctx context.Context, cid domain.CID) ([]*models.Contact, error) {
	out, err := s.store.ListContacts(ctx, cid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contacts")
	}
	return out, nil
}

// CountByStatus reports identities per status; every status is present.
func (s *Service) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count identities")
	}
	out := make(map[models.Status]int64, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		out[st] = counts[st]
	}
	return out, nil
}

func validateVerifiedRefs(refs models.EvidenceRefs) error {
	if err := requireRef("provider", refs.Provider, validation.MaxKeyLength); err != nil {
		return err
	}
	if err := requireRef("document_ref", refs.DocumentRef, validation.MaxEvidenceRefLength); err != nil {
		return err
	}
	return requireRef("liveness_ref", refs.LivenessRef, validation.MaxEvidenceRefLength)
}

func validateClaimedRef(ref models.EvidenceRef) error {
	if err := requireRef("provider", ref.Provider, validation.MaxKeyLength); err != nil {
		return err
	}
	return requireRef("liveness_ref", ref.LivenessRef, validation.MaxEvidenceRefLength)
}

func requireRef(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return dErrors.Invalid(field, "is required")
	}
	return validation.CheckStringLength(field, value, maxLen)
}

func validateContact(contactType models.ContactType, value string) error {
	if value == "" {
		return dErrors.Invalid("value", "is required")
	}
	if err := validation.CheckStringLength("value", value, validation.MaxContactValueLength); err != nil {
		return err
	}
	switch contactType {
	case models.ContactEmail:
		return v.Var("value", value, "email")
	case models.ContactPhone:
		return v.Var("value", value, "e164")
	case models.ContactAgent:
		return nil
	default:
		return dErrors.Invalid("type", "must be one of email, phone, agent")
	}
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logWarn(ctx, "failed to emit audit event", "action", event.Action, "cid", event.CID, "error", err)
	}
}

func (s *Service) observeStoreLatency(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperationLatency(operation, time.Since(start).Seconds())
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}
