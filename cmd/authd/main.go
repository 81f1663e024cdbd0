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
	"github.com/joho/godotenv"

	"github.com/mukkaboot-ai/auth-service/internal/app"
	"github.com/mukkaboot-ai/auth-service/internal/filestore"
	"github.com/mukkaboot-ai/auth-service/internal/platform/cache"
	"github.com/mukkaboot-ai/auth-service/internal/platform/db"
	"github.com/mukkaboot-ai/auth-service/internal/rbac"
	"github.com/mukkaboot-ai/auth-service/internal/session"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
	"github.com/mukkaboot-ai/auth-service/internal/users"
	"github.com/mukkaboot-ai/auth-service/jobs"
)

// repositories bundles the storage implementations behind the selected backend.
type repositories struct {
	users         users.Repository
	refreshTokens tokens.RefreshTokenRepository
	resetTokens   tokens.ResetTokenRepository
	close         func()
}

func openRepositories(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*repositories, error) {
	if cfg.StorageBackend == app.BackendPostgres {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("storage backend ready", slog.String("backend", app.BackendPostgres))
		return &repositories{
			users:         users.NewPGRepository(pool),
			refreshTokens: tokens.NewPGRefreshTokenRepository(pool),
			resetTokens:   tokens.NewPGResetTokenRepository(pool),
			close:         pool.Close,
		}, nil
	}

	store, err := filestore.Open(cfg.UsersFile)
	if err != nil {
		return nil, err
	}
	logger.Info("storage backend ready",
		slog.String("backend", app.BackendFile),
		slog.String("path", cfg.UsersFile),
	)
	return &repositories{
		users:         users.NewFileRepository(store),
		refreshTokens: tokens.NewFileRefreshTokenRepository(store),
		resetTokens:   tokens.NewFileResetTokenRepository(store),
		close:         func() {},
	}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	// Absent .env files are fine; real environments set variables directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer repos.close()

	var throttle session.ResetThrottle
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reset throttle disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		throttle = session.NewRedisThrottle(redisClient, logger, 5, time.Hour)
	}

	var mailer session.ResetMailer
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("job client unavailable, reset emails disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		mailer = jobClient
	}

	issuer := tokens.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL)
	rbacMiddleware := rbac.Middleware{Issuer: issuer, Logger: logger}

	usersService := users.NewService(logger, repos.users, repos.refreshTokens, cfg.AllowRegistration)
	if err := usersService.Bootstrap(ctx, cfg.BootstrapPassword); err != nil {
		logger.Error("bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	sessionService := session.NewService(
		logger,
		repos.users,
		repos.refreshTokens,
		repos.resetTokens,
		issuer,
		mailer,
		throttle,
		cfg.AllowPasswordReset,
	)
	sessionHandler := session.NewHandler(
		logger,
		sessionService,
		cfg.LoginRateLimit,
		cfg.LoginRateWindow,
		!cfg.IsProduction(),
	)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionHandler: sessionHandler,
		UsersHandler:   usersHandler,
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
