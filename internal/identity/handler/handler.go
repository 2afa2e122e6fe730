package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/identity/models"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/httputil"
	"cidledger/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	CreateVerifiedIdentity(ctx context.Context, refs models.EvidenceRefs) (*models.Identity, error)
	CreateClaimedIdentity(ctx context.Context, ref models.EvidenceRef) (*models.Identity, error)
	GetByCID(ctx context.Context, cid domain.CID) (*models.Identity, bool, error)
	UpdateStatus(ctx context.Context, cid domain.CID, status models.Status) (*models.Identity, error)
	AddContact(ctx context.Context, cid domain.CID, contactType models.ContactType, value string) (*models.Contact, error)
	ListVerifications(ctx context.Context, cid domain.CID) ([]*models.Verification, error)
	ListContacts(ctx context.Context, cid domain.CID) ([]*models.Contact, error)
}

// Handler serves the identity registry endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public identity routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/identities/verified", h.handleCreateVerified)
	r.Post("/v1/identities/claimed", h.handleCreateClaimed)
	r.Get("/v1/identities/{cid}", h.handleGet)
	r.Put("/v1/identities/{cid}/contacts/{type}", h.handleUpsertContact)
}

// RegisterAdmin mounts routes that must sit behind the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Patch("/v1/admin/identities/{cid}/status", h.handleUpdateStatus)
}

func (h *Handler) handleCreateVerified(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[CreateVerifiedRequest](w, r, h.logger)
	if !ok {
		return
	}
	identity, err := h.service.CreateVerifiedIdentity(r.Context(), req.toRefs())
	if err != nil {
		h.fail(r.Context(), w, "failed to create verified identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

func (h *Handler) handleCreateClaimed(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[CreateClaimedRequest](w, r, h.logger)
	if !ok {
		return
	}
	identity, err := h.service.CreateClaimedIdentity(r.Context(), req.toRef())
	if err != nil {
		h.fail(r.Context(), w, "failed to create claimed identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identity, found, err := h.service.GetByCID(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to read identity", err)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "identity not found"))
		return
	}

	resp := toIdentityResponse(identity)
	verifications, err := h.service.ListVerifications(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to list verifications", err)
		return
	}
	resp.Verifications = toVerificationResponses(verifications)
	contacts, err := h.service.ListContacts(ctx, cid)
	if err != nil {
		h.fail(ctx, w, "failed to list contacts", err)
		return
	}
	for _, c := range contacts {
		resp.Contacts = append(resp.Contacts, toContactResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpsertContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	contactType, err := models.ParseContactType(chi.URLParam(r, "type"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpsertContactRequest](w, r, h.logger)
	if !ok {
		return
	}
	contact, err := h.service.AddContact(ctx, cid, contactType, req.Value)
	if err != nil {
		h.fail(ctx, w, "failed to upsert contact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toContactResponse(contact))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger)
	if !ok {
		return
	}
	identity, err := h.service.UpdateStatus(ctx, cid, models.Status(req.Status))
	if err != nil {
		h.fail(ctx, w, "failed to update identity status", err)
		return
	}
	h.logger.InfoContext(ctx, "identity status updated by admin",
		"cid", cid,
		"status", identity.Status,
		"actor", requestcontext.AdminActor(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeIdentityCreation) {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
