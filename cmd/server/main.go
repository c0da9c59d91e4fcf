package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"riskgate/internal/agents"
	"riskgate/internal/audit"
	"riskgate/internal/audit/stream"
	"riskgate/internal/auth"
	"riskgate/internal/flow"
	"riskgate/internal/platform/config"
	"riskgate/internal/platform/httpserver"
	"riskgate/internal/platform/logger"
	platformredis "riskgate/internal/platform/redis"
	"riskgate/internal/policy"
	"riskgate/internal/router"
	httptransport "riskgate/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

// main wires the pipeline: platform clients, audit trail, policy engine,
// capability router, flow, and the HTTP surface. Business logic lives in the
// internal packages; this file only connects them and manages lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, db, err := buildAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var index audit.Index
	if redisClient != nil {
		index = audit.NewRedisIndex(redisClient.Client)
	}

	publisher, err := stream.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	if err != nil {
		return err
	}

	auditMetrics := audit.NewMetrics(prometheus.DefaultRegisterer)
	writerOpts := []audit.WriterOption{
		audit.WithQueueCapacity(cfg.Audit.QueueCapacity),
		audit.WithEnqueueWait(cfg.Audit.EnqueueWait),
		audit.WithBatchSize(cfg.Audit.BatchSize),
		audit.WithFlushInterval(cfg.Audit.FlushInterval),
	}
	if publisher != nil {
		writerOpts = append(writerOpts, audit.WithNotifier(publisher.Notify))
	}
	trail, err := audit.NewTrail(store, index, log, auditMetrics, writerOpts...)
	if err != nil {
		return err
	}
	if err := trail.Writer.Start(ctx); err != nil {
		return err
	}

	var state policy.UserStateStore
	var killSwitch httptransport.KillSwitch
	if redisClient != nil {
		state = policy.NewRedisStateStore(redisClient.Client)
		killSwitch = policy.NewRedisSwitch(redisClient.Client, log)
	} else {
		state = policy.NewInMemoryStateStore()
		killSwitch = policy.NewSwitch()
		log.Warn("redis not configured, policy state and kill switch are instance-local")
	}

	engine, err := policy.NewEngine(cfg.Rules, state, killSwitch,
		policy.WithEngineLogger(log),
	)
	if err != nil {
		return err
	}

	signalRouter := router.New(
		router.WithLogger(log),
		router.WithMetrics(router.NewMetrics(prometheus.DefaultRegisterer)),
	)
	for _, capability := range []router.Capability{
		agents.NewDetection(),
		agents.NewBehavior(),
		agents.NewNetwork(),
	} {
		if err := signalRouter.Register(capability); err != nil {
			return err
		}
	}

	pipeline := flow.New(signalRouter, engine, trail.Logger,
		flow.WithLogger(log),
		flow.WithMetrics(flow.NewMetrics(prometheus.DefaultRegisterer)),
		flow.WithAgentTimeout(cfg.AgentTimeout),
	)

	jwtService := auth.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handler := httptransport.NewRouter(httptransport.Handlers{
		Decision: httptransport.NewDecisionHandler(pipeline, log),
		Audit:    httptransport.NewAuditHandler(trail, log),
		Admin:    httptransport.NewAdminHandler(killSwitch, log),
		Health:   httptransport.NewHealthHandler(trail, trail.Writer),
	}, auth.NewMiddlewareAdapter(jwtService), log)

	srv := httpserver.New(cfg.Server.Addr, handler)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("riskgate listening", "addr", cfg.Server.Addr, "agents", signalRouter.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
		// The writer drains after the server stops accepting work, so
		// everything already enqueued gets its chance to persist.
		if err := trail.Writer.Close(shutdownCtx); err != nil {
			log.Error("audit writer close", "error", err)
		}
		if publisher != nil {
			if err := publisher.Close(shutdownCtx); err != nil {
				log.Warn("stream publisher close", "error", err)
			}
		}
		return nil
	})

	return group.Wait()
}

// buildAuditStore assembles the persistence fan-out from configuration. With
// nothing configured it falls back to the in-memory store, which is loudly
// not durable.
func buildAuditStore(ctx context.Context, cfg config.Config, log *slog.Logger) (audit.Store, *sql.DB, error) {
	var stores []audit.Store
	var db *sql.DB

	if cfg.Audit.FilePath != "" {
		fileStore, err := audit.NewFileStore(cfg.Audit.FilePath)
		if err != nil {
			return nil, nil, err
		}
		stores = append(stores, fileStore)
	}

	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		pgStore := audit.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		stores = append(stores, pgStore)
	}

	if len(stores) == 0 {
		log.Warn("no durable audit backend configured, records will not survive restarts")
		return audit.NewInMemoryStore(), nil, nil
	}
	if len(stores) == 1 {
		return stores[0], db, nil
	}
	return audit.NewMultiStore(stores...), db, nil
}
