package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/consent/models"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/httputil"
	"cidledger/pkg/requestcontext"
)

// Service defines the consent chain operations exposed over HTTP.
type Service interface {
	Append(ctx context.Context, req models.AppendRequest) (*models.Event, error)
	GetHistory(ctx context.Context, cid domain.CID) ([]*models.Event, error)
	VerifyChain(ctx context.Context, cid domain.CID) (*models.VerifyResult, error)
	DeriveCurrentConsent(ctx context.Context, cid domain.CID) (*models.Scope, error)
}

// Handler serves the consent chain endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/identities/{cid}/consent", func(r chi.Router) {
		r.Post("/events", h.handleAppend)
		r.Get("/events", h.handleHistory)
		r.Get("/current", h.handleCurrent)
		r.Get("/verify", h.handleVerify)
	})
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AppendEventRequest](w, r, h.logger)
	if !ok {
		return
	}
	event, err := h.service.Append(ctx, models.AppendRequest{
		CID:       cid,
		EventType: models.EventType(req.EventType),
		Scope:     req.ConsentScope,
		Source:    models.Source(req.Source),
		Provenance: models.Provenance{
			IPAddress: requestcontext.ClientIP(ctx),
			UserAgent: requestcontext.UserAgent(ctx),
		},
	})
	if err != nil {
		h.fail(ctx, w, "failed to append consent event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.GetHistory(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to read consent history", err)
		return
	}
	resp := HistoryResponse{CID: cid.String(), Events: make([]EventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scope, err := h.service.DeriveCurrentConsent(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to derive consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CurrentConsentResponse{
		CID:           cid.String(),
		ConsentStatus: string(models.StatusOf(scope)),
		ConsentScope:  scope,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.VerifyChain(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to verify consent chain", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
