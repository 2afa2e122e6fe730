package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/oracle"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/httputil"
	"cidledger/pkg/requestcontext"
	"cidledger/pkg/validation"
)

// Service is the oracle port the handler depends on.
type Service interface {
	Check(ctx context.Context, req oracle.CheckRequest) (*oracle.CheckResult, error)
}

// CheckConsentRequest is the body of POST /v1/consent/check.
type CheckConsentRequest struct {
	CID             string `json:"cid" validate:"required,cid"`
	UseType         string `json:"use_type" validate:"max=64"`
	Region          string `json:"region" validate:"max=16"`
	Modality        string `json:"modality" validate:"max=64"`
	ContentCategory string `json:"content_category" validate:"max=64"`
	VerifyIntegrity bool   `json:"verify_integrity"`
}

func (r *CheckConsentRequest) Normalize() {
	r.CID = strings.TrimSpace(r.CID)
}

func (r *CheckConsentRequest) Validate() error {
	return validation.Validate(r)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/consent/check", h.handleCheck)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CheckConsentRequest](w, r, h.logger)
	if !ok {
		return
	}
	result, err := h.service.Check(ctx, oracle.CheckRequest{
		CID:             domain.CID(req.CID),
		UseType:         req.UseType,
		Region:          req.Region,
		Modality:        req.Modality,
		ContentCategory: req.ContentCategory,
		VerifyIntegrity: req.VerifyIntegrity,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "consent check failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
