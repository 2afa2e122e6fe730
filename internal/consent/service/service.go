package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"cidledger/internal/audit"
	"cidledger/internal/consent/metrics"
	"cidledger/internal/consent/models"
	"cidledger/internal/consent/store"
	idmodels "cidledger/internal/identity/models"
	"cidledger/internal/platform/kafka/producer"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/sentinel"
	"cidledger/pkg/platform/tracer"
	"cidledger/pkg/requestcontext"
	"cidledger/pkg/validation"
)

// Store defines the persistence interface for consent chains.
// Error Contract:
//   - Head returns sentinel.ErrNotFound for an empty chain
//   - Append returns sentinel.ErrConflict when event does not extend the head,
//     sentinel.ErrNotFound when the identity does not exist
//   - List methods return empty results, never ErrNotFound
type Store interface {
	Head(ctx context.Context, cid domain.CID) (*models.Event, error)
	Append(ctx context.Context, event *models.Event) error
	ListByCID(ctx context.Context, cid domain.CID) ([]*models.Event, error)
	ListByCIDs(ctx context.Context, cids []domain.CID) (map[domain.CID][]*models.Event, error)
	CountEvents(ctx context.Context) (int64, error)
	CountConsentStates(ctx context.Context) (store.ConsentStates, error)
}

// IdentityReader is the registry port used to gate appends.
type IdentityReader interface {
	GetByCID(ctx context.Context, cid domain.CID) (*idmodels.Identity, bool, error)
}

// DerivedCache holds replay results keyed by CID and pinned to a head event.
type DerivedCache interface {
	Get(ctx context.Context, cid domain.CID, headID domain.EventID) (*models.Scope, bool, error)
	Set(ctx context.Context, cid domain.CID, headID domain.EventID, scope *models.Scope) error
	Invalidate(ctx context.Context, cid domain.CID) error
}

const maxUserAgentLength = 512

type Option func(*Service)

// Service owns the consent chain: append, history, replay and verification.
type Service struct {
	store    Store
	tx       ChainTx
	cache    DerivedCache
	producer producer.Publisher
	topic    string
	auditor  audit.Emitter
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

func New(store Store, identities IdentityReader, opts ...Option) *Service {
	svc := &Service{
		store:  store,
		tracer: tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.tx == nil {
		svc.tx = NewShardedTx(store, identities, svc.metrics)
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

// WithTx replaces the default in-process serialization, e.g. with
// NewPostgresTx. The identities passed to New are then only used by the
// default transaction.
func WithTx(tx ChainTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithCache(c DerivedCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithPublisher publishes appended events to topic.
func WithPublisher(p producer.Publisher, topic string) Option {
	return func(s *Service) {
		s.producer = p
		s.topic = topic
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

// Append validates req, then reads the head and writes its successor inside
// one per-CID serialized transaction. Conflicts are reported, never retried.
func (s *Service) Append(ctx context.Context, req models.AppendRequest) (event *models.Event, err error) {
	if err := prepareAppend(&req); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanChainAppend,
		tracer.String(tracer.AttrCID, req.CID.String()),
		tracer.String(tracer.AttrEventType, string(req.EventType)),
	)
	defer func() { span.End(err) }()

	start := time.Now()
	err = s.tx.RunInTx(ctx, req.CID, func(ctx context.Context, txStore Store, identities IdentityReader) error {
		if err := requireAppendable(ctx, identities, req); err != nil {
			return err
		}
		head, err := txStore.Head(ctx, req.CID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		next, err := models.NextEvent(head, req, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := txStore.Append(ctx, next); err != nil {
			return err
		}
		event = next
		return nil
	})
	s.observeStoreLatency("append", start)
	if err != nil {
		return nil, s.translateAppendError(ctx, req, err)
	}

	s.invalidate(ctx, req.CID)
	s.publish(ctx, event)
	if s.metrics != nil {
		s.metrics.IncrementEventsAppended(string(event.EventType))
	}
	s.emitAudit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		CID:      event.CID.String(),
		Action:   audit.ActionConsentAppended,
		Decision: string(event.EventType),
		Attributes: map[string]string{
			"event_id":   event.ID.String(),
			"sequence":   formatInt(event.Sequence),
			"source":     string(event.Source),
			"event_hash": event.EventHash,
		},
	})
	s.logInfo(ctx, "consent event appended",
		"cid", event.CID,
		"event_type", event.EventType,
		"sequence", event.Sequence,
		"request_id", requestcontext.RequestID(ctx),
	)
	return event.Clone(), nil
}

// prepareAppend normalizes and validates req before any store interaction.
func prepareAppend(req *models.AppendRequest) error {
	if _, err := domain.ParseCID(req.CID.String()); err != nil {
		return err
	}
	if !req.EventType.IsValid() {
		return dErrors.Invalid("event_type", "must be one of grant, modify, restrict, revoke, reinstate")
	}
	if !req.Source.IsValid() {
		return dErrors.Invalid("source", "must be one of onboarding, dashboard, api, admin, system")
	}
	req.Scope = req.Scope.Clone()
	req.Scope.Normalize()
	if err := req.Scope.Validate(req.EventType); err != nil {
		return err
	}
	if err := validation.Var("ip_address", req.Provenance.IPAddress, "omitempty,ip"); err != nil {
		return err
	}
	if len(req.Provenance.UserAgent) > maxUserAgentLength {
		return dErrors.Invalid("user_agent", "too long")
	}
	return nil
}

// requireAppendable rejects appends for unknown identities and anything but
// revoke for suspended or revoked ones.
func requireAppendable(ctx context.Context, identities IdentityReader, req models.AppendRequest) error {
	identity, found, err := identities.GetByCID(ctx, req.CID)
	if err != nil {
		return err
	}
	if !found {
		return dErrors.New(dErrors.CodeNotFound, "identity not found")
	}
	if !identity.IsActive() && req.EventType != models.EventRevoke {
		return dErrors.New(dErrors.CodeInvalidState, "identity is "+string(identity.Status)+"; only revoke events are accepted")
	}
	return nil
}

func (s *Service) translateAppendError(ctx context.Context, req models.AppendRequest, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		if s.metrics != nil {
			s.metrics.IncrementAppendConflicts()
		}
		s.logWarn(ctx, "consent append lost the race for the chain head",
			"cid", req.CID,
			"event_type", req.EventType,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodeConflict, "chain head moved; re-read history before appending")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "identity not found")
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	s.logError(ctx, "consent append failed", "cid", req.CID, "error", err)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append consent event")
}

// GetHistory returns the chain in ascending (recorded_at, sequence) order.
// An unknown CID has an empty history.
func (s *Service) GetHistory(ctx context.Context, cid domain.CID) ([]*models.Event, error) {
	if _, err := domain.ParseCID(cid.String()); err != nil {
		return nil, err
	}
	start := time.Now()
	events, err := s.store.ListByCID(ctx, cid)
	s.observeStoreLatency("list_by_cid", start)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent history")
	}
	return events, nil
}

// ListHistories reads many chains in one batch. CIDs without events map to
// an empty history.
func (s *Service) ListHistories(ctx context.Context, cids []domain.CID) (map[domain.CID][]*models.Event, error) {
	start := time.Now()
	chains, err := s.store.ListByCIDs(ctx, cids)
	s.observeStoreLatency("list_by_cids", start)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent histories")
	}
	return chains, nil
}

// Head returns the latest event, or false for an empty chain.
func (s *Service) Head(ctx context.Context, cid domain.CID) (*models.Event, bool, error) {
	if _, err := domain.ParseCID(cid.String()); err != nil {
		return nil, false, err
	}
	head, err := s.store.Head(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read chain head")
	}
	return head, true, nil
}

// VerifyChain recomputes every hash and reports all mismatches. Integrity
// failures are data in the result, not errors.
func (s *Service) VerifyChain(ctx context.Context, cid domain.CID) (result *models.VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChainVerify, tracer.String(tracer.AttrCID, cid.String()))
	defer func() { span.End(err) }()

	events, err := s.GetHistory(ctx, cid)
	if err != nil {
		return nil, err
	}
	result = models.Verify(cid, events)
	span.SetAttributes(
		tracer.Int(tracer.AttrChainLength, result.EventsCount),
		tracer.Bool(tracer.AttrChainValid, result.Valid),
	)
	if s.metrics != nil {
		s.metrics.IncrementChainVerification(result.Valid)
	}
	if !result.Valid {
		s.logWarn(ctx, "consent chain failed verification",
			"cid", cid,
			"mismatches", len(result.Errors),
			"first_divergence", result.FirstDivergence(),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.emitAudit(ctx, audit.Event{
			Category: audit.CategoryCompliance,
			CID:      cid.String(),
			Action:   audit.ActionChainVerified,
			Decision: "invalid",
			Reason:   string(result.Errors[0].Kind),
			Attributes: map[string]string{
				"mismatches":       formatInt(int64(len(result.Errors))),
				"first_divergence": formatInt(int64(result.FirstDivergence())),
			},
		})
	}
	return result, nil
}

// DeriveCurrentConsent replays the chain into the current scope; nil means no
// consent. When a cache is configured, an entry is served only if it was
// derived from the current head.
func (s *Service) DeriveCurrentConsent(ctx context.Context, cid domain.CID) (scope *models.Scope, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChainDerive, tracer.String(tracer.AttrCID, cid.String()))
	defer func() { span.End(err) }()

	head, found, err := s.Head(ctx, cid)
	if err != nil || !found {
		return nil, err
	}

	if s.cache != nil {
		cached, hit, cacheErr := s.cache.Get(ctx, cid, head.ID)
		switch {
		case cacheErr != nil:
			s.recordCache("error")
			s.logWarn(ctx, "derived consent cache read failed", "cid", cid, "error", cacheErr)
		case hit:
			s.recordCache("hit")
			span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, true))
			return cached, nil
		default:
			s.recordCache("miss")
		}
	}

	events, err := s.GetHistory(ctx, cid)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveChainLength(len(events))
	}
	scope = models.Replay(events)
	span.SetAttributes(tracer.Bool(tracer.AttrCacheHit, false), tracer.Int(tracer.AttrChainLength, len(events)))

	if s.cache != nil && len(events) > 0 && events[len(events)-1].ID == head.ID {
		if err := s.cache.Set(ctx, cid, head.ID, scope); err != nil {
			s.logWarn(ctx, "derived consent cache write failed", "cid", cid, "error", err)
		}
	}
	return scope, nil
}

func (s *Service) invalidate(ctx context.Context, cid domain.CID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cid); err != nil {
		// head pinning keeps a lingering entry from being served
		s.logWarn(ctx, "derived consent cache invalidation failed", "cid", cid, "error", err)
	}
}

func (s *Service) recordCache(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementDerivedCache(outcome)
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

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
