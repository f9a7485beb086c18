package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hemmy-platform/hemmy-authz/internal/app"
	"github.com/hemmy-platform/hemmy-authz/internal/bootstrap"
	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/ledger"
	"github.com/hemmy-platform/hemmy-authz/internal/observability"
	"github.com/hemmy-platform/hemmy-authz/internal/platform/cache"
	"github.com/hemmy-platform/hemmy-authz/internal/platform/db"
	"github.com/hemmy-platform/hemmy-authz/internal/resolver"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
	"github.com/hemmy-platform/hemmy-authz/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolSettings{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGConnLifetime,
		PingTimeout:     cfg.PGPingTimeout,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPingTimeout)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	seeder := bootstrap.NewSeeder(dbpool, logger)
	if err := seeder.Run(ctx); err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.SeedSuperadminUser > 0 {
		if err := seeder.GrantSuperadmin(ctx, cfg.SeedSuperadminUser); err != nil {
			logger.Error("grant superadmin", slog.Any("error", err))
			os.Exit(1)
		}
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	auditRecorder := jobs.NewAuditEnqueuer(jobClient)

	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	perms := resolver.New(ledgerRepo, resolver.DefaultMatcher)
	cachedPerms := resolver.NewCached(perms, redisClient, cfg.ResolverCacheTTL, logger)
	authz := resolver.Middleware{Source: cachedPerms, Logger: logger}

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditRecorder, cachedPerms)
	ledgerService := ledger.NewService(ledgerRepo, auditRecorder, cachedPerms)

	metrics := observability.NewMetrics()

	catalogHandler := catalog.NewHandler(logger, catalogService, authz, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, authz, idempotencyStore)
	resolverHandler := resolver.NewHandler(logger, cachedPerms, authz, metrics.ObserveDecision)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		LedgerHandler:   ledgerHandler,
		ResolverHandler: resolverHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
