package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"genba/internal/artifact"
	"genba/internal/audit"
	audithandler "genba/internal/audit/handler"
	"genba/internal/check/executor"
	"genba/internal/check/gateway"
	checkhandler "genba/internal/check/handler"
	checkmetrics "genba/internal/check/metrics"
	"genba/internal/platform/config"
	"genba/internal/platform/httpserver"
	"genba/internal/platform/logger"
	"genba/internal/platform/middleware"
	platformredis "genba/internal/platform/redis"
	sessionhandler "genba/internal/session/handler"
	sessionmetrics "genba/internal/session/metrics"
	sessionservice "genba/internal/session/service"
	sessionstore "genba/internal/session/store"
	sopstore "genba/internal/sop/store"
	platformaudit "genba/pkg/platform/audit"
	auditmemory "genba/pkg/platform/audit/store/memory"
	auditworker "genba/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: PostgreSQL when configured, in-memory otherwise.
	var (
		sessions sessionstore.SessionStore
		sops     sessionservice.SOPReader
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		sessions = sessionstore.NewPostgresSessionStore(db)
		sops = sopstore.NewPostgres(db)
		log.Info("using postgres session store")
	} else {
		sessions = sessionstore.NewInMemorySessionStore()
		sops = sopstore.NewInMemorySOPStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Audio artifacts: redis when configured, local filesystem otherwise.
	var artifacts artifact.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		artifacts = artifact.NewRedisStore(redisClient.Client, cfg.Redis.ArtifactTTL)
		log.Info("using redis artifact store", "ttl", cfg.Redis.ArtifactTTL)
	} else {
		fsStore, err := artifact.NewFilesystemStore(cfg.ArtifactDir)
		if err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
		artifacts = fsStore
		log.Info("using filesystem artifact store", "dir", cfg.ArtifactDir)
	}

	// Audit trail: kafka when brokers are configured, otherwise an
	// in-process worker draining a channel into memory.
	group, groupCtx := errgroup.WithContext(ctx)
	var (
		publisher  platformaudit.Publisher
		eventStore platformaudit.Store
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := platformaudit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafka.Close()
		publisher = kafka
		log.Info("publishing audit events to kafka", "topic", cfg.AuditTopic)
	} else {
		inbox := make(chan platformaudit.Event, 256)
		memStore := auditmemory.NewInMemoryStore()
		publisher = platformaudit.NewChannelPublisher(inbox, log)
		eventStore = memStore
		worker := auditworker.NewWorker(memStore, inbox, log)
		group.Go(func() error {
			if err := worker.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		log.Warn("KAFKA_BROKERS not set, keeping audit events in memory")
	}

	gw := gateway.NewHTTP(cfg.VerifierURL)
	if cfg.VerifierURL == "" {
		log.Warn("VERIFIER_URL not set, safety checks will fail")
	}

	sessionM := sessionmetrics.New()
	checkM := checkmetrics.New()

	service := sessionservice.New(sessions, sops, publisher,
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(sessionM),
		sessionservice.WithSynthesizer(gw, artifacts),
	)
	exec := executor.New(sessions, sops, gw, artifacts, publisher,
		executor.WithLogger(log),
		executor.WithMetrics(checkM),
		executor.WithVerifyTimeout(cfg.VerifyTimeout),
		executor.WithReviewThreshold(cfg.ReviewThreshold),
	)
	gateOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(sessionM),
	}
	if eventStore != nil {
		gateOpts = append(gateOpts, audit.WithEventStore(eventStore))
	}
	gate := audit.New(sessions, sops, publisher, gateOpts...)

	validator := middleware.NewJWTValidator(cfg.JWTSigningKey)

	router := chi.NewRouter()
	router.Use(middleware.RequestMeta)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		sessionhandler.New(service, log).Register(r)
		checkhandler.New(exec, log).Register(r, middleware.RequireSupervisor(log))
		audithandler.New(gate, log).Register(r, middleware.RequireSupervisor(log))
	})

	srv := httpserver.New(cfg.Addr, router)
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
