package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mukkaboot-ai/auth-service/internal/tokens"
)

// TokenSweepJob purges expired refresh and reset tokens from storage. Runs on
// a cron schedule; deleting an already-deleted token is a no-op, so overlapping
// sweeps are harmless.
type TokenSweepJob struct {
	RefreshTokens tokens.RefreshTokenRepository
	ResetTokens   tokens.ResetTokenRepository
	Logger        *slog.Logger
}

// NewTokenSweepJob wires dependencies for the sweep handler.
func NewTokenSweepJob(refresh tokens.RefreshTokenRepository, reset tokens.ResetTokenRepository, logger *slog.Logger) *TokenSweepJob {
	return &TokenSweepJob{
		RefreshTokens: refresh,
		ResetTokens:   reset,
		Logger:        logger,
	}
}

// Handle processes token sweep tasks.
func (j *TokenSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.RefreshTokens == nil || j.ResetTokens == nil {
		return errors.New("token sweep: handler not configured")
	}
	logger := j.logger()
	start := time.Now()

	refreshDeleted, err := j.RefreshTokens.DeleteExpired(ctx)
	if err != nil {
		logger.Error("sweep refresh tokens", slog.Any("error", err))
		return err
	}
	resetDeleted, err := j.ResetTokens.DeleteExpired(ctx)
	if err != nil {
		logger.Error("sweep reset tokens", slog.Any("error", err))
		return err
	}

	logger.Info("token sweep completed",
		slog.Int("refreshDeleted", refreshDeleted),
		slog.Int("resetDeleted", resetDeleted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *TokenSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeTokenSweep))
	}
	return slog.Default().With(slog.String("job", TaskTypeTokenSweep))
}
