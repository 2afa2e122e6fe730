package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/bulk"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/httputil"
	"cidledger/pkg/requestcontext"
	"cidledger/pkg/validation"
)

type Service interface {
	BulkLookup(ctx context.Context, cids []domain.CID) ([]bulk.LookupItem, error)
	BulkConsentCheck(ctx context.Context, cids []domain.CID, checkCtx bulk.CheckContext) (*bulk.CheckResult, error)
}

// LookupRequest is the body of POST /v1/bulk/lookup. CID format and batch
// bounds are checked by the service so errors name cids[i].
type LookupRequest struct {
	CIDs []string `json:"cids"`
}

func (r *LookupRequest) Normalize() {
	for i := range r.CIDs {
		r.CIDs[i] = strings.TrimSpace(r.CIDs[i])
	}
}

func (r *LookupRequest) toCIDs() []domain.CID {
	out := make([]domain.CID, len(r.CIDs))
	for i, c := range r.CIDs {
		out[i] = domain.CID(c)
	}
	return out
}

type CheckRequest struct {
	LookupRequest
	UseType         string `json:"use_type" validate:"max=64"`
	Region          string `json:"region" validate:"max=16"`
	Modality        string `json:"modality" validate:"max=64"`
	ContentCategory string `json:"content_category" validate:"max=64"`
	VerifyIntegrity bool   `json:"verify_integrity"`
}

func (r *CheckRequest) Validate() error {
	return validation.Validate(r)
}

type LookupResponse struct {
	Results []bulk.LookupItem `json:"results"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/bulk", func(r chi.Router) {
		r.Post("/lookup", h.handleLookup)
		r.Post("/check", h.handleCheck)
	})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[LookupRequest](w, r, h.logger)
	if !ok {
		return
	}
	items, err := h.service.BulkLookup(ctx, req.toCIDs())
	if err != nil {
		h.fail(ctx, w, "bulk lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LookupResponse{Results: items})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CheckRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.BulkConsentCheck(ctx, req.toCIDs(), bulk.CheckContext{
		UseType:         req.UseType,
		Region:          req.Region,
		Modality:        req.Modality,
		ContentCategory: req.ContentCategory,
		VerifyIntegrity: req.VerifyIntegrity,
	})
	if err != nil {
		h.fail(ctx, w, "bulk consent check failed", err)
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
