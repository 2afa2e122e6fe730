package stats

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	consentstore "cidledger/internal/consent/store"
	idmodels "cidledger/internal/identity/models"
	"cidledger/internal/platform/metrics"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/requestcontext"
)

// IdentityCounter counts identities per status.
type IdentityCounter interface {
	CountByStatus(ctx context.Context) (map[idmodels.Status]int64, error)
}

// ConsentCounter counts stored events and derived consent states.
type ConsentCounter interface {
	CountEvents(ctx context.Context) (int64, error)
	CountConsentStates(ctx context.Context) (consentstore.ConsentStates, error)
}

// Snapshot is a point-in-time aggregate of the registry.
type Snapshot struct {
	TotalIdentities     int64            `json:"total_identities"`
	IdentitiesByStatus  map[string]int64 `json:"identities_by_status"`
	TotalConsentEvents  int64            `json:"total_consent_events"`
	ActiveConsentCount  int64            `json:"identities_with_active_consent"`
	RevokedConsentCount int64            `json:"identities_with_revoked_consent"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

type Option func(*Service)

// Service computes read-only statistics. Point the counters at a read
// replica to keep the aggregate queries off the primary.
type Service struct {
	identities IdentityCounter
	consent    ConsentCounter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(identities IdentityCounter, consent ConsentCounter, opts ...Option) *Service {
	s := &Service{identities: identities, consent: consent}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithMetrics publishes every snapshot as registry gauges.
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

// Snapshot runs the three aggregate reads concurrently. Every status is
// present in the result, zero when no identity holds it.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		byStatus map[idmodels.Status]int64
		events   int64
		states   consentstore.ConsentStates
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = s.identities.CountByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		events, err = s.consent.CountEvents(gctx)
		return err
	})
	g.Go(func() (err error) {
		states, err = s.consent.CountConsentStates(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to compute registry statistics",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute statistics")
	}

	snap := &Snapshot{
		IdentitiesByStatus:  make(map[string]int64, len(idmodels.AllStatuses)),
		TotalConsentEvents:  events,
		ActiveConsentCount:  states.Active,
		RevokedConsentCount: states.Revoked,
		GeneratedAt:         requestcontext.Now(ctx),
	}
	for _, status := range idmodels.AllStatuses {
		n := byStatus[status]
		snap.IdentitiesByStatus[status.String()] = n
		snap.TotalIdentities += n
	}
	s.metrics.RecordSnapshot(snap.IdentitiesByStatus, snap.TotalConsentEvents,
		snap.ActiveConsentCount, snap.RevokedConsentCount, float64(snap.GeneratedAt.Unix()))
	return snap, nil
}
