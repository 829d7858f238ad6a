package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumenlearn/lumen/internal/app"
	"github.com/lumenlearn/lumen/internal/credential"
	jobmetrics "github.com/lumenlearn/lumen/internal/jobs"
	"github.com/lumenlearn/lumen/internal/observability"
	"github.com/lumenlearn/lumen/internal/platform/db"
	"github.com/lumenlearn/lumen/internal/users"
	"github.com/lumenlearn/lumen/jobs"
)

func main() {
	if app.SkipStartup("worker") {
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	hasher, err := credential.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		logger.Error("init hasher", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()
	engine := credential.NewPool(hasher, cfg.HashConcurrency, metrics.Registerer())
	userService := users.NewService(users.NewRepository(pool), engine, logger)

	finalizeJob := jobs.NewFinalizeDeletionJob(userService, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	finalizeTask, err := jobs.NewFinalizeDeletionTask(cfg.DeletionGracePeriod)
	if err != nil {
		logger.Error("build finalize task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFinalizeDeletion, Handler: finalizeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DeletionCron, Task: finalizeTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Hour)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Checks:  map[string]app.HealthCheck{"postgres": pool.Ping},
	})
	opsServer := &http.Server{
		Addr:         cfg.WorkerOpsAddr,
		Handler:      router,
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}
	go func() {
		logger.Info("starting worker ops server", slog.String("addr", cfg.WorkerOpsAddr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker ops server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("cron", cfg.DeletionCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
