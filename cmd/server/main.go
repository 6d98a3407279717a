// The chalk server exposes the usage-quota engine over HTTP: the consumer
// endpoints the teaching-materials app calls before serving a generation
// or download, and the token-guarded admin surface. main wires
// dependencies and keeps the lifecycle small; business logic lives in the
// internal packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"chalk/internal/audit"
	"chalk/internal/auth/session"
	"chalk/internal/platform/config"
	"chalk/internal/platform/database"
	"chalk/internal/platform/health"
	"chalk/internal/platform/kafka/producer"
	"chalk/internal/platform/logger"
	platformredis "chalk/internal/platform/redis"
	"chalk/internal/seeder"
	usageconfig "chalk/internal/usage/config"
	"chalk/internal/usage/handler"
	"chalk/internal/usage/identity"
	"chalk/internal/usage/metrics"
	"chalk/internal/usage/service/quota"
	subscriberstore "chalk/internal/usage/store/subscriber"
	usagestore "chalk/internal/usage/store/usage"
	"chalk/internal/usage/tier"
	"chalk/internal/usage/tracing"
	"chalk/migrations"
	adminmw "chalk/pkg/platform/middleware/admin"
	"chalk/pkg/platform/middleware/metadata"
	"chalk/pkg/platform/middleware/request"
	"chalk/pkg/platform/middleware/requesttime"
	"chalk/pkg/platform/validation"
)

// subscriptionBackend is what composition needs from a subscription store:
// reads for tier resolution, writes for the admin tier surface.
type subscriptionBackend interface {
	tier.SubscriptionStore
	quota.SubscriptionStore
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewAtLevel(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing chalk",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	// Without DATABASE_URL the server runs on seeded in-memory stores.
	// That mode exists for local work only; production must not boot into
	// state that vanishes on restart.
	devMode := cfg.DatabaseDSN == ""
	if devMode && cfg.Environment != "development" {
		return errors.New("DATABASE_URL is required outside development")
	}

	var (
		usageCounters quota.Store
		subscribers   subscriptionBackend
		auditStore    audit.Store
		pool          *database.Pool
	)
	if devMode {
		memUsage := usagestore.NewMemory()
		memSubs := subscriberstore.NewMemory()
		memAudit := audit.NewInMemoryStore()
		if err := seeder.New(memSubs, memUsage, memAudit, log).SeedAll(ctx); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		usageCounters, subscribers, auditStore = memUsage, memSubs, memAudit
		log.Warn("no DATABASE_URL set: serving from seeded in-memory stores, nothing survives a restart")
	} else {
		dbCfg := database.DefaultConfig()
		dbCfg.DSN = cfg.DatabaseDSN
		var err error
		pool, err = database.New(dbCfg)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close() //nolint:errcheck // shutdown path

		if err := migrations.Apply(ctx, pool.DB()); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}

		usageCounters = usagestore.NewPostgres(pool.DB())
		subscribers = subscriberstore.NewPostgres(pool.DB())
		auditStore = audit.NewPostgres(pool.DB())
	}

	limits, err := usageconfig.FromEnv()
	if err != nil {
		return fmt.Errorf("quota limits: %w", err)
	}

	m := metrics.New()

	// Tier cache is optional: without REDIS_ADDR every resolution hits the
	// subscription table, which is correct, just slower.
	tierOpts := []tier.Option{tier.WithLogger(log), tier.WithMetrics(m)}
	redisClient, err := platformredis.New(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		tierOpts = append(tierOpts, tier.WithCache(redisClient.Client, cfg.TierCacheTTL))
		log.Info("tier cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.TierCacheTTL)
	}

	// The resolver reads subscriptions through a circuit breaker: a billing
	// store outage serves each user's last confirmed tier for a few minutes
	// instead of flapping every premium caller down to free limits.
	tiers := tier.NewResolver(tier.NewResilientStore(subscribers, log), tierOpts...)

	// Audit trail: events land in the configured store, with Kafka fan-out
	// when brokers are set. The buffer decouples request latency from
	// audit writes.
	auditOpts := []audit.PublisherOption{
		audit.WithPublisherLogger(log),
		audit.WithAsyncBuffer(cfg.AuditBufferSize),
	}
	var kafkaProducer *producer.Producer
	if cfg.KafkaBrokers != "" {
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         cfg.KafkaBrokers,
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer kafkaProducer.Close() //nolint:errcheck // shutdown path
		auditOpts = append(auditOpts, audit.WithSink(audit.NewKafkaSink(kafkaProducer, cfg.KafkaAuditTopic)))
		log.Info("audit kafka sink enabled", "topic", cfg.KafkaAuditTopic)
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)
	defer publisher.Close()

	service, err := quota.New(usageCounters, tiers, subscribers,
		quota.WithConfig(limits),
		quota.WithLogger(log),
		quota.WithMetrics(m),
		quota.WithAuditPublisher(publisher),
		quota.WithTracer(tracing.NewOTel()),
	)
	if err != nil {
		return fmt.Errorf("quota service: %w", err)
	}

	identities := identity.NewResolver(session.NewVerifier(cfg.SessionSecret), log)
	h := handler.New(service, identities, log)

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(checkCtx)
		})
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(checkCtx)
		})
	}
	if kafkaProducer != nil {
		healthHandler.RegisterCheck("kafka", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(checkCtx) {
				return errors.New("kafka broker unreachable")
			}
			return nil
		})
	}

	router := newRouter(cfg, log, h, healthHandler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newRouter assembles the middleware stack and mounts the API surface.
// Order matters: recovery outermost, then request id and the pinned
// request time (every quota decision in one request shares a clock), then
// client metadata for the audit path.
func newRouter(cfg config.Server, log *slog.Logger, h *handler.Handler, healthHandler *health.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(metadata.DefaultConfig()).Handler)
	r.Use(request.Logger(log))
	r.Use(request.Timeout(30 * time.Second))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)
	r.Use(request.LatencyMiddleware(request.NewMetrics()))

	healthHandler.Register(r)
	h.Register(r)

	r.Group(func(admin chi.Router) {
		admin.Use(adminmw.RequireToken(cfg.AdminTokenHash, log))
		h.RegisterAdmin(admin)
	})

	return r
}
