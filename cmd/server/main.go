package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cidledger/internal/audit"
	bulkservice "cidledger/internal/bulk"
	bulkhandler "cidledger/internal/bulk/handler"
	bulkmetrics "cidledger/internal/bulk/metrics"
	consentcache "cidledger/internal/consent/cache"
	consenthandler "cidledger/internal/consent/handler"
	consentmetrics "cidledger/internal/consent/metrics"
	consentservice "cidledger/internal/consent/service"
	consentstore "cidledger/internal/consent/store"
	identityhandler "cidledger/internal/identity/handler"
	identitymetrics "cidledger/internal/identity/metrics"
	identitymodels "cidledger/internal/identity/models"
	identityservice "cidledger/internal/identity/service"
	identitystore "cidledger/internal/identity/store"
	oracleservice "cidledger/internal/oracle"
	oraclehandler "cidledger/internal/oracle/handler"
	oraclemetrics "cidledger/internal/oracle/metrics"
	"cidledger/internal/platform/config"
	"cidledger/internal/platform/database"
	"cidledger/internal/platform/health"
	"cidledger/internal/platform/kafka"
	"cidledger/internal/platform/kafka/consumer"
	"cidledger/internal/platform/kafka/producer"
	"cidledger/internal/platform/logger"
	"cidledger/internal/platform/metrics"
	"cidledger/internal/platform/redis"
	"cidledger/internal/stats"
	httptransport "cidledger/internal/transport/http"
	"cidledger/migrations"
	"cidledger/pkg/platform/circuit"
	"cidledger/pkg/platform/middleware/metadata"
	"cidledger/pkg/platform/middleware/request"
	"cidledger/pkg/platform/tracer"
)

const (
	shutdownTimeout     = 15 * time.Second
	poolStatsInterval   = 15 * time.Second
	startupProbeTimeout = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// infra holds the optional backing services. Nil fields mean the feature runs
// in process or is disabled.
type infra struct {
	db          *database.Pool
	redis       *redis.Client
	producer    producer.Publisher
	consumer    *consumer.Consumer
	kafkaHealth *kafka.HealthChecker
}

func (i *infra) close(ctx context.Context, log *slog.Logger) {
	if i.consumer != nil {
		if err := i.consumer.Stop(ctx); err != nil {
			log.Warn("audit consumer stop failed", "error", err)
		}
	}
	if i.kafkaHealth != nil {
		i.kafkaHealth.Close()
	}
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			log.Warn("kafka producer close failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing cidledger",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Enabled(),
	)

	healthHandler := health.New(cfg.Environment)
	deps, err := connect(ctx, cfg, log, healthHandler)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.close(closeCtx, log)
	}()
	if err != nil {
		return err
	}

	hasher, err := identitymodels.NewEvidenceHasher([]byte(cfg.Security.IdentityHashPepper))
	if err != nil {
		return err
	}
	if cfg.Security.IdentityHashPepper == "" {
		log.Warn("IDENTITY_HASH_PEPPER is empty; evidence digests are unkeyed")
	}

	otel := tracer.NewOTel()

	// Audit trail: Kafka sink drained by the consumer into the store when
	// brokers are configured, otherwise written directly.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if deps.db != nil {
		auditStore = audit.NewPostgresStore(deps.db.DB())
	}
	auditOpts := []audit.PublisherOption{
		audit.WithAsyncBuffer(config.DefaultAuditBuffer),
		audit.WithPublisherLogger(log),
		audit.WithPublisherMetrics(audit.NewMetrics()),
	}
	if cfg.Kafka.Enabled() {
		auditOpts = append(auditOpts, audit.WithKafkaSink(deps.producer, cfg.Kafka.AuditTopic))
		auditConsumer, err := consumer.New(kafka.AuditConsumerConfig(cfg.Kafka), audit.NewHandler(auditStore, log), log)
		if err != nil {
			return fmt.Errorf("audit consumer: %w", err)
		}
		deps.consumer = auditConsumer
		auditConsumer.Start(ctx)
	}
	auditor := audit.NewPublisher(auditStore, auditOpts...)
	defer auditor.Close()

	// Registry
	var (
		identityStore     identityservice.Store = identitystore.NewInMemory()
		chainStore        consentservice.Store  = consentstore.NewInMemory()
		identityReadStore stats.IdentityCounter
		chainReadStore    stats.ConsentCounter
		consentOpts       []consentservice.Option
	)
	if deps.db != nil {
		identityStore = identitystore.NewPostgres(deps.db.DB())
		identityReadStore = identitystore.NewPostgres(deps.db.ReadDB())
		chainStore = consentstore.NewPostgres(deps.db.DB())
		chainReadStore = consentstore.NewPostgres(deps.db.ReadDB())
		consentOpts = append(consentOpts, consentservice.WithTx(consentservice.NewPostgresTx(deps.db.DB(), cfg.Database.TxTimeout.Duration)))
	} else {
		identityReadStore = identityStore
		chainReadStore = chainStore
	}

	identities := identityservice.New(identityStore, hasher,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithAuditor(auditor),
	)

	consentOpts = append(consentOpts,
		consentservice.WithLogger(log),
		consentservice.WithMetrics(consentmetrics.New()),
		consentservice.WithAuditor(auditor),
		consentservice.WithTracer(otel),
	)
	if deps.redis != nil {
		derived := consentcache.NewRedisCache(deps.redis, cfg.Consent.DerivedCacheTTL.Duration,
			consentcache.WithBreaker(circuit.New("consent-derived-cache")),
			consentcache.WithLogger(log),
		)
		consentOpts = append(consentOpts, consentservice.WithCache(derived))
	}
	if cfg.Kafka.Enabled() {
		consentOpts = append(consentOpts, consentservice.WithPublisher(deps.producer, cfg.Kafka.ConsentTopic))
	}
	consent := consentservice.New(chainStore, identities, consentOpts...)

	oracle := oracleservice.New(identities, consent,
		oracleservice.WithLogger(log),
		oracleservice.WithMetrics(oraclemetrics.New()),
		oracleservice.WithAuditor(auditor),
		oracleservice.WithTracer(otel),
	)
	bulk := bulkservice.New(identities, consent, oracle,
		bulkservice.WithConcurrency(cfg.Bulk.Concurrency),
		bulkservice.WithMetrics(bulkmetrics.New()),
		bulkservice.WithLogger(log),
		bulkservice.WithTracer(otel),
	)
	statistics := stats.New(identityReadStore, chainReadStore,
		stats.WithMetrics(metrics.New()),
		stats.WithLogger(log),
	)

	trustedProxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	identityHTTP := identityhandler.New(identities, log)
	router := httptransport.New(httptransport.Config{
		AdminToken:     cfg.Security.AdminAPIToken,
		TrustedProxies: trustedProxies,
	}, log, healthHandler,
		httptransport.WithRequestMetrics(request.NewMetrics()),
		httptransport.WithPublic(
			identityHTTP,
			consenthandler.New(consent, log),
			oraclehandler.New(oracle, log),
			bulkhandler.New(bulk, log),
		),
		httptransport.WithAdmin(
			identityHTTP,
			stats.NewHandler(statistics, auditor, log),
		),
	)
	if cfg.Security.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN is empty; admin routes reject every request")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		IdleTimeout:       cfg.Server.IdleTimeout.Duration,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// connect opens every configured backing service and registers its
// readiness check. The returned infra is safe to close even on error.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger, h *health.Handler) (*infra, error) {
	deps := &infra{}
	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if cfg.Database.URL != "" {
		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(log, cfg.Database.URL, migrations.FS); err != nil {
				return deps, fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := database.New(probeCtx, cfg.Database)
		if err != nil {
			return deps, fmt.Errorf("database: %w", err)
		}
		deps.db = pool
		h.RegisterCheck("postgres", pool.Health)
	} else {
		log.Warn("DATABASE_URL is empty; using in-memory stores")
	}

	client, err := redis.New(probeCtx, cfg.Redis)
	if err != nil {
		return deps, fmt.Errorf("redis: %w", err)
	}
	if client != nil {
		deps.redis = client
		h.RegisterOptionalCheck("redis", client.Health)
		go recordPoolStats(ctx, client)
	}

	if cfg.Kafka.Enabled() {
		p, err := producer.New(kafka.ProducerConfig(cfg.Kafka), log, producer.WithMetrics(producer.NewMetrics()))
		if err != nil {
			return deps, fmt.Errorf("kafka producer: %w", err)
		}
		deps.producer = p
		checker, err := kafka.NewHealthChecker(cfg.Kafka.Brokers, cfg.Kafka.ConsentTopic, cfg.Kafka.AuditTopic)
		if err != nil {
			return deps, fmt.Errorf("kafka health: %w", err)
		}
		deps.kafkaHealth = checker
		h.RegisterCheck(checker.Name(), checker.Check)
	} else {
		deps.producer = producer.NewNoopProducer()
	}
	return deps, nil
}

func recordPoolStats(ctx context.Context, client *redis.Client) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.RecordPoolStats()
		}
	}
}
