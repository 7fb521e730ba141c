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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tallybook/tallybook/internal/app"
	"github.com/tallybook/tallybook/internal/ledger/accounts"
	"github.com/tallybook/tallybook/internal/ledger/fx"
	"github.com/tallybook/tallybook/internal/ledger/journals"
	"github.com/tallybook/tallybook/internal/ledger/plans"
	"github.com/tallybook/tallybook/internal/observability"
	"github.com/tallybook/tallybook/internal/platform/cache"
	"github.com/tallybook/tallybook/internal/platform/db"
	"github.com/tallybook/tallybook/internal/shared"
	"github.com/tallybook/tallybook/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, fx caching disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	staticRates, err := fx.ParseRates(cfg.FXRates)
	if err != nil {
		logger.Error("parse FX_RATES", slog.Any("error", err))
		os.Exit(1)
	}
	var rates fx.RateProvider = fx.NewStaticProvider(staticRates)
	if redisClient != nil {
		rates = fx.NewCachedProvider(fx.CachedProviderConfig{
			Next:              rates,
			Client:            redisClient,
			TTL:               cfg.FXCacheTTL,
			FallbackLastKnown: cfg.FXFallbackLastKnown,
			Logger:            logger,
		})
	}

	var jobsHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobsClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(asynq.NewInspector(redisOpts), jobsClient, logger)
	}

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, rates, auditLogger, metrics, logger)
	journalsHandler := journals.NewHandler(logger, journalsService)

	plansRepo := plans.NewRepository(pool)
	plansService := plans.NewService(plansRepo, rates, auditLogger, metrics, logger)
	plansHandler := plans.NewHandler(logger, plansService)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		JournalsHandler: journalsHandler,
		PlansHandler:    plansHandler,
		JobsHandler:     jobsHandler,
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
