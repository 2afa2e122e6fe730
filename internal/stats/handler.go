package stats

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/audit"
	"cidledger/pkg/domain"
	dErrors "cidledger/pkg/domain-errors"
	"cidledger/pkg/platform/httputil"
	"cidledger/pkg/requestcontext"
)

const maxAuditLimit = 500

// AuditLister reads the audit trail of one CID, newest first.
type AuditLister interface {
	List(ctx context.Context, cid string, filter audit.ListFilter) ([]audit.Event, error)
}

type AuditEventResponse struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Timestamp  time.Time         `json:"timestamp"`
	Action     string            `json:"action"`
	Decision   string            `json:"decision,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type AuditTrailResponse struct {
	CID    string               `json:"cid"`
	Events []AuditEventResponse `json:"events"`
}

// Handler serves the admin monitoring endpoints.
type Handler struct {
	service *Service
	audit   AuditLister
	logger  *slog.Logger
}

func NewHandler(service *Service, auditTrail AuditLister, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditTrail, logger: logger}
}

// RegisterAdmin mounts routes that must sit behind the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/v1/admin/stats", h.handleStats)
	r.Get("/v1/admin/audit/{cid}", h.handleAuditTrail)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin stats retrieved",
		"admin_actor", requestcontext.AdminActor(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := domain.ParseCID(chi.URLParam(r, "cid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := audit.ListFilter{Action: audit.Action(r.URL.Query().Get("action")), Limit: 100}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			httputil.WriteError(w, dErrors.Invalid("limit", "must be between 1 and "+strconv.Itoa(maxAuditLimit)))
			return
		}
		filter.Limit = limit
	}

	events, err := h.audit.List(ctx, cid.String(), filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"cid", cid,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	resp := AuditTrailResponse{CID: cid.String(), Events: make([]AuditEventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, AuditEventResponse{
			ID:         e.ID.String(),
			Category:   string(e.Category),
			Timestamp:  e.Timestamp,
			Action:     string(e.Action),
			Decision:   e.Decision,
			Reason:     e.Reason,
			RequestID:  e.RequestID,
			ActorID:    e.ActorID,
			Attributes: e.Attributes,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
