package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"cidledger/internal/platform/health"
	"cidledger/internal/platform/metrics"
	"cidledger/pkg/platform/middleware/admin"
	"cidledger/pkg/platform/middleware/device"
	"cidledger/pkg/platform/middleware/metadata"
	"cidledger/pkg/platform/middleware/request"
	"cidledger/pkg/platform/validation"
)

// Registrar mounts public routes.
type Registrar interface {
	Register(r chi.Router)
}

// AdminRegistrar mounts routes that sit behind the admin token.
type AdminRegistrar interface {
	RegisterAdmin(r chi.Router)
}

type Config struct {
	AdminToken     string
	TrustedProxies []netip.Prefix
	MaxBodyBytes   int64
}

// Router assembles the middleware stack and every module's routes.
type Router struct {
	cfg            Config
	logger         *slog.Logger
	health         *health.Handler
	requestMetrics *request.Metrics
	public         []Registrar
	admin          []AdminRegistrar
}

type Option func(*Router)

func WithPublic(handlers ...Registrar) Option {
	return func(r *Router) {
		r.public = append(r.public, handlers...)
	}
}

func WithAdmin(handlers ...AdminRegistrar) Option {
	return func(r *Router) {
		r.admin = append(r.admin, handlers...)
	}
}

func WithRequestMetrics(m *request.Metrics) Option {
	return func(r *Router) {
		r.requestMetrics = m
	}
}

func New(cfg Config, logger *slog.Logger, healthHandler *health.Handler, opts ...Option) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = validation.MaxBodySize
	}
	r := &Router{cfg: cfg, logger: logger, health: healthHandler}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler builds the chi mux. Middleware order matters: request id and time
// come first so every later layer can log and stamp with them; client
// metadata precedes the device label derived from it.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(rt.logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(metadata.New(rt.cfg.TrustedProxies...).Handler)
	r.Use(device.Middleware)
	r.Use(request.Logger(rt.logger))
	if rt.requestMetrics != nil {
		r.Use(request.Latency(rt.requestMetrics))
	}
	r.Use(request.BodyLimit(rt.cfg.MaxBodyBytes))

	rt.health.Register(r)
	r.Handle("/metrics", metrics.Handler())

	for _, h := range rt.public {
		h.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(rt.cfg.AdminToken, rt.logger))
		for _, h := range rt.admin {
			h.RegisterAdmin(r)
		}
	})
	return r
}
