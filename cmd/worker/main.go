package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mukkaboot-ai/auth-service/internal/app"
	"github.com/mukkaboot-ai/auth-service/internal/filestore"
	"github.com/mukkaboot-ai/auth-service/internal/platform/db"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
	"github.com/mukkaboot-ai/auth-service/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var refreshRepo tokens.RefreshTokenRepository
	var resetRepo tokens.ResetTokenRepository
	if cfg.StorageBackend == app.BackendPostgres {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		refreshRepo = tokens.NewPGRefreshTokenRepository(pool)
		resetRepo = tokens.NewPGResetTokenRepository(pool)
	} else {
		store, err := filestore.Open(cfg.UsersFile)
		if err != nil {
			logger.Error("open user store", slog.Any("error", err))
			os.Exit(1)
		}
		refreshRepo = tokens.NewFileRefreshTokenRepository(store)
		resetRepo = tokens.NewFileResetTokenRepository(store)
	}

	sweepJob := jobs.NewTokenSweepJob(refreshRepo, resetRepo, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeTokenSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec:    fmt.Sprintf("@every %s", cfg.SweepInterval),
				Task:    jobs.NewTokenSweepTask(),
				Options: []asynq.Option{asynq.MaxRetry(3)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
