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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lumenlearn/lumen/cmd/lumen/cli"
	"github.com/lumenlearn/lumen/internal/app"
	"github.com/lumenlearn/lumen/internal/auth"
	"github.com/lumenlearn/lumen/internal/credential"
	"github.com/lumenlearn/lumen/internal/observability"
	"github.com/lumenlearn/lumen/internal/platform/cache"
	"github.com/lumenlearn/lumen/internal/platform/db"
	"github.com/lumenlearn/lumen/internal/users"
	"github.com/lumenlearn/lumen/jobs"
)

type services struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	metrics *observability.Metrics
	users   *users.Service
	auth    *auth.Service
}

func (s *services) close(logger *slog.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func bootstrap(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*services, error) {
	svc := &services{metrics: observability.NewMetrics()}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	svc.pool = pool

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		svc.close(logger)
		return nil, err
	}
	svc.redis = redisClient

	hasher, err := credential.NewBcryptHasher(cfg.BcryptCost)
	if err != nil {
		svc.close(logger)
		return nil, err
	}
	engine := credential.NewPool(hasher, cfg.HashConcurrency, svc.metrics.Registerer())

	svc.users = users.NewService(users.NewRepository(pool), engine, logger)
	svc.auth, err = auth.NewService(ctx, svc.users, engine, auth.Options{
		Throttle:   auth.NewThrottle(redisClient, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow),
		RehashCost: cfg.BcryptCost,
		Logger:     logger,
	})
	if err != nil {
		svc.close(logger)
		return nil, fmt.Errorf("init auth: %w", err)
	}
	return svc, nil
}

func main() {
	if app.SkipStartup("lumen") {
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
	slog.SetDefault(logger)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	if command == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts(cfg), cfg.DeletionGracePeriod)
		code := jobsCLI.Run(ctx, args)
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		os.Exit(code)
	}
	if command != "serve" && command != "users" {
		_, _ = fmt.Fprintln(os.Stderr, "usage: lumen [serve|users|jobs] ...")
		os.Exit(2)
	}

	svc, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer svc.close(logger)

	if command == "users" {
		code := cli.NewUsersCLI(svc.users, svc.auth, cli.UsersOptions{}).Run(ctx, args)
		svc.close(logger)
		os.Exit(code)
	}

	if err := serve(ctx, cfg, logger, svc); err != nil {
		logger.Error("ops server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, svc *services) error {
	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: svc.metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": svc.pool.Ping,
			"redis": func(ctx context.Context) error {
				return svc.redis.Ping(ctx).Err()
			},
		},
		Jobs: jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting ops server", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
