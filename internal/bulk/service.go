package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"cidledger/internal/bulk/metrics"
	consentmodels "cidledger/internal/consent/models"
	idmodels "cidledger/internal/identity/models"
	"cidledger/internal/oracle"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/tracer"
	"cidledger/pkg/platform/validation"
	"cidledger/pkg/requestcontext"
)

const defaultConcurrency = 16

// IdentityReader reads many identities in one batch; unknown CIDs are absent
// from the map.
type IdentityReader interface {
	GetMany(ctx context.Context, cids []domain.CID) (map[domain.CID]*idmodels.Identity, error)
}

// HistoryReader reads many consent chains in one batch.
type HistoryReader interface {
	ListHistories(ctx context.Context, cids []domain.CID) (map[domain.CID][]*consentmodels.Event, error)
}

// Checker evaluates a single consent check.
type Checker interface {
	Check(ctx context.Context, req oracle.CheckRequest) (*oracle.CheckResult, error)
}

type Option func(*Service)

// Service wraps the registry, the consent chain and the oracle for
// high-volume callers.
type Service struct {
	identities  IdentityReader
	histories   HistoryReader
	checker     Checker
	concurrency int
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger
}

func New(identities IdentityReader, histories HistoryReader, checker Checker, opts ...Option) *Service {
	s := &Service{
		identities:  identities,
		histories:   histories,
		checker:     checker,
		concurrency: defaultConcurrency,
		tracer:      tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithConcurrency bounds the number of oracle checks in flight per request.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// BulkLookup reports registry and consent state for each CID in input order,
// using one batched identity read and one batched history read.
func (s *Service) BulkLookup(ctx context.Context, cids []domain.CID) (items []LookupItem, err error) {
	if err := ValidateCIDs(cids); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanBulkLookup, tracer.Int(tracer.AttrBatchSize, len(cids)))
	defer func() { span.End(err) }()
	start := time.Now()

	unique := dedupe(cids)
	identities, err := s.identities.GetMany(ctx, unique)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read identities")
	}
	histories, err := s.histories.ListHistories(ctx, unique)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent histories")
	}

	items = make([]LookupItem, len(cids))
	for i, cid := range cids {
		items[i] = lookupItem(cid, identities[cid], histories[cid])
	}
	s.observe("lookup", len(cids), start)
	return items, nil
}

// lookupItem folds one CID. Inactive identities report revoked consent,
// matching what the oracle would answer.
func lookupItem(cid domain.CID, identity *idmodels.Identity, history []*consentmodels.Event) LookupItem {
	if identity == nil {
		return LookupItem{CID: cid, ConsentStatus: consentmodels.ConsentNotFound}
	}
	item := LookupItem{CID: cid, Found: true, Status: identity.Status.String()}
	if !identity.IsActive() {
		item.ConsentStatus = consentmodels.ConsentRevoked
		return item
	}
	item.ConsentStatus = consentmodels.StatusOf(consentmodels.Replay(history))
	return item
}

// BulkConsentCheck runs an oracle check per CID with bounded concurrency.
// Each branch writes only its own slot. Any check error fails the batch.
func (s *Service) BulkConsentCheck(ctx context.Context, cids []domain.CID, checkCtx CheckContext) (result *CheckResult, err error) {
	if err := ValidateCIDs(cids); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanBulkConsentCheck,
		tracer.Int(tracer.AttrBatchSize, len(cids)),
		tracer.String(tracer.AttrUseType, checkCtx.UseType),
	)
	defer func() { span.End(err) }()
	start := time.Now()

	items := make([]CheckItem, len(cids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, cid := range cids {
		g.Go(func() error {
			checked, err := s.checker.Check(gctx, checkCtx.request(cid))
			if err != nil {
				return err
			}
			items[i] = CheckItem{
				CID:           cid,
				Allowed:       checked.Allowed,
				ConsentStatus: checked.ConsentStatus,
				Reason:        checked.Reason,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "bulk consent check failed",
				"batch_size", len(cids),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "bulk consent check failed")
	}

	s.observe("check", len(cids), start)
	return &CheckResult{Results: items, Totals: tally(items)}, nil
}

// ValidateCIDs rejects empty or oversized batches and names the first
// malformed entry.
func ValidateCIDs(cids []domain.CID) error {
	if len(cids) == 0 {
		return dErrors.Invalid("cids", "at least one CID is required")
	}
	if err := validation.CheckSliceCount("cids", len(cids), MaxBatchSize); err != nil {
		return err
	}
	for i, cid := range cids {
		if !domain.ValidCID(cid.String()) {
			return dErrors.Invalid(fmt.Sprintf("cids[%d]", i), "must match CID-<16 lowercase hex>")
		}
	}
	return nil
}

func dedupe(cids []domain.CID) []domain.CID {
	seen := make(map[domain.CID]struct{}, len(cids))
	out := make([]domain.CID, 0, len(cids))
	for _, cid := range cids {
		if _, ok := seen[cid]; ok {
			continue
		}
		seen[cid] = struct{}{}
		out = append(out, cid)
	}
	return out
}

func (s *Service) observe(operation string, size int, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveBatch(operation, size, time.Since(start).Seconds())
	}
}
