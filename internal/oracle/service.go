package oracle

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"cidledger/internal/audit"
	consentmodels "cidledger/internal/consent/models"
	idmodels "cidledger/internal/identity/models"
	"cidledger/internal/oracle/metrics"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/tracer"
	"cidledger/pkg/requestcontext"
)

// IdentityReader looks up registry state. Not-found is reported through the
// bool, never as an error.
type IdentityReader interface {
	GetByCID(ctx context.Context, cid domain.CID) (*idmodels.Identity, bool, error)
}

// ConsentReader derives and verifies consent chains.
type ConsentReader interface {
	DeriveCurrentConsent(ctx context.Context, cid domain.CID) (*consentmodels.Scope, error)
	VerifyChain(ctx context.Context, cid domain.CID) (*consentmodels.VerifyResult, error)
}

type Option func(*Service)

// Service answers whether a specific use is currently permitted for a CID.
// It holds no state between calls.
type Service struct {
	identities IdentityReader
	consent    ConsentReader
	auditor    audit.Emitter
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

// New panics on missing ports so misconfiguration fails at startup.
func New(identities IdentityReader, consent ConsentReader, opts ...Option) *Service {
	if identities == nil {
		panic("oracle.New: identity reader is required")
	}
	if consent == nil {
		panic("oracle.New: consent reader is required")
	}
	s := &Service{
		identities: identities,
		consent:    consent,
		tracer:     tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Check evaluates req and short-circuits on the first failing condition:
// identity existence, identity status, derived consent, optional chain
// integrity, then the scope rules in EvaluateScope. A denial is a result,
// not an error; errors mean the decision could not be made.
func (s *Service) Check(ctx context.Context, req CheckRequest) (result *CheckResult, err error) {
	if _, err := domain.ParseCID(req.CID.String()); err != nil {
		return nil, err
	}
	req.Normalize()

	ctx, span := s.tracer.Start(ctx, tracer.SpanOracleCheck,
		tracer.String(tracer.AttrCID, req.CID.String()),
		tracer.String(tracer.AttrUseType, req.UseType),
		tracer.Bool(tracer.AttrVerifyChained, req.VerifyIntegrity),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	result = &CheckResult{
		CID:             req.CID,
		CheckedAt:       requestcontext.Now(ctx),
		UseType:         req.UseType,
		Region:          req.Region,
		Modality:        req.Modality,
		ContentCategory: req.ContentCategory,
	}
	if err = s.evaluate(ctx, req, result); err != nil {
		s.logError(ctx, "consent check failed", "cid", req.CID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate consent")
	}

	span.SetAttributes(
		tracer.Bool(tracer.AttrAllowed, result.Allowed),
		tracer.String(tracer.AttrReason, string(result.Reason)),
	)
	if s.metrics != nil {
		s.metrics.IncrementCheck(result.Allowed, string(result.Reason))
		s.metrics.ObserveCheckLatency(time.Since(start).Seconds())
	}
	s.emitAudit(ctx, result)
	return result, nil
}

func (s *Service) evaluate(ctx context.Context, req CheckRequest, result *CheckResult) error {
	identity, found, err := s.identities.GetByCID(ctx, req.CID)
	if err != nil {
		return err
	}
	if !found {
		result.deny(consentmodels.ConsentNotFound, ReasonIdentityNotFound)
		return nil
	}
	result.IdentityStatus = identity.Status.String()
	if !identity.IsActive() {
		result.deny(consentmodels.ConsentRevoked, ReasonIdentityInactive)
		return nil
	}

	scope, err := s.consent.DeriveCurrentConsent(ctx, req.CID)
	if err != nil {
		return err
	}
	if scope == nil {
		result.deny(consentmodels.ConsentRevoked, ReasonConsentRevoked)
		return nil
	}

	if req.VerifyIntegrity {
		verification, err := s.consent.VerifyChain(ctx, req.CID)
		if err != nil {
			return err
		}
		valid := verification.Valid
		result.ChainVerified = &valid
		if !valid {
			// corruption is reported apart from a clean revoke
			if s.metrics != nil {
				s.metrics.IncrementIntegrityFailures()
			}
			s.logWarn(ctx, "consent check denied on chain integrity failure",
				"cid", req.CID,
				"first_divergence", verification.FirstDivergence(),
				"request_id", requestcontext.RequestID(ctx),
			)
			result.deny(consentmodels.ConsentActive, ReasonChainIntegrity)
			return nil
		}
	}

	if reason := EvaluateScope(scope, req, result.CheckedAt); reason != "" {
		result.deny(consentmodels.ConsentActive, reason)
		return nil
	}
	result.allow()
	return nil
}

func (s *Service) emitAudit(ctx context.Context, result *CheckResult) {
	if s.auditor == nil {
		return
	}
	decision := "denied"
	if result.Allowed {
		decision = "allowed"
	}
	attrs := map[string]string{
		"consent_status":   string(result.ConsentStatus),
		"use_type":         result.UseType,
		"region":           result.Region,
		"modality":         result.Modality,
		"content_category": result.ContentCategory,
	}
	if result.ChainVerified != nil {
		attrs["chain_verified"] = strconv.FormatBool(*result.ChainVerified)
	}
	event := audit.Event{
		Category:   audit.CategoryCompliance,
		Timestamp:  result.CheckedAt,
		CID:        result.CID.String(),
		Action:     audit.ActionConsentChecked,
		Decision:   decision,
		Reason:     string(result.Reason),
		Attributes: attrs,
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logWarn(ctx, "failed to emit audit event", "action", event.Action, "cid", event.CID, "error", err)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}
