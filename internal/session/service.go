// Package session implements the token lifecycle: login, refresh rotation,
// logout, stateless validation, and the password-reset flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
	"github.com/mukkaboot-ai/auth-service/internal/users"
)

// ResetMailer delivers password-reset emails out of band. The jobs client
// satisfies this; a nil mailer means delivery is skipped.
type ResetMailer interface {
	EnqueueResetEmail(ctx context.Context, email, token string) error
}

// ResetThrottle limits how often reset emails can be requested per address.
type ResetThrottle interface {
	Allow(ctx context.Context, email string) bool
}

// Service drives authentication flows over the user and token repositories.
type Service struct {
	logger             *slog.Logger
	users              users.Repository
	refreshTokens      tokens.RefreshTokenRepository
	resetTokens        tokens.ResetTokenRepository
	issuer             *tokens.Issuer
	mailer             ResetMailer
	throttle           ResetThrottle
	allowPasswordReset bool
}

// NewService constructs a Service. mailer and throttle may be nil.
func NewService(
	logger *slog.Logger,
	userRepo users.Repository,
	refreshRepo tokens.RefreshTokenRepository,
	resetRepo tokens.ResetTokenRepository,
	issuer *tokens.Issuer,
	mailer ResetMailer,
	throttle ResetThrottle,
	allowPasswordReset bool,
) *Service {
	return &Service{
		logger:             logger,
		users:              userRepo,
		refreshTokens:      refreshRepo,
		resetTokens:        resetRepo,
		issuer:             issuer,
		mailer:             mailer,
		throttle:           throttle,
		allowPasswordReset: allowPasswordReset,
	}
}

// TokenPair bundles the credentials returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Login verifies a username/password pair and mints a fresh token pair.
// Unknown username, wrong password, and disabled account all collapse into
// httpx.ErrInvalidCredentials so responses never reveal which part failed.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*users.User, *TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil, httpx.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, httpx.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, nil, httpx.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if updated, err := s.users.Update(ctx, user.ID, users.UpdateFields{LastLogin: &now}); err != nil {
		// A stale lastLogin is not worth failing the login over.
		s.logger.Warn("update last login", slog.String("userID", user.ID), slog.Any("error", err))
	} else {
		user = updated
	}

	pair, err := s.mintPair(ctx, user, clientIP)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("login succeeded", slog.String("userID", user.ID))
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is minted. The revoke is a compare-and-set, so a replayed token loses
// the race and fails even when two rotations arrive back to back.
func (s *Service) Refresh(ctx context.Context, refreshToken, clientIP string) (*users.User, *TokenPair, error) {
	current, err := s.refreshTokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil, httpx.ErrInvalidOrExpired
		}
		return nil, nil, err
	}
	if !current.Usable(time.Now()) {
		return nil, nil, httpx.ErrInvalidOrExpired
	}

	user, err := s.users.FindByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, nil, httpx.ErrInvalidOrExpired
		}
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, httpx.ErrInvalidOrExpired
	}

	// Revoke before minting. Losing this CAS means another request already
	// rotated the token, and this one is a replay.
	if _, err := s.refreshTokens.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			s.logger.Warn("refresh token replay detected", slog.String("userID", user.ID))
			return nil, nil, httpx.ErrInvalidOrExpired
		}
		return nil, nil, err
	}

	pair, err := s.mintPair(ctx, user, clientIP)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout revokes the presented refresh token. An unknown or already-revoked
// token is treated as success so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := s.refreshTokens.Revoke(ctx, refreshToken)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil
	}
	return err
}

// ValidateToken verifies an access token without touching storage.
func (s *Service) ValidateToken(tokenString string) (*tokens.Claims, error) {
	return s.issuer.VerifyAccessToken(tokenString)
}

// RequestPasswordReset issues a reset token for the account behind the email.
// It returns the token so non-production callers can surface it; when the
// email is unknown the call still succeeds with an empty token, keeping the
// response identical for existing and non-existing addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if !s.allowPasswordReset {
		return "", httpx.ErrPasswordResetClosed
	}
	if s.throttle != nil && !s.throttle.Allow(ctx, email) {
		s.logger.Warn("password reset throttled", slog.String("email", email))
		return "", nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	reset, err := s.issuer.NewResetToken(user.ID)
	if err != nil {
		return "", err
	}
	if err := s.resetTokens.Create(ctx, reset); err != nil {
		return "", err
	}

	if s.mailer != nil {
		if err := s.mailer.EnqueueResetEmail(ctx, user.Email, reset.Token); err != nil {
			s.logger.Error("enqueue reset email", slog.String("userID", user.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return reset.Token, nil
}

// ValidateResetToken checks that a reset token exists, is unused, and has not
// expired.
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	reset, err := s.resetTokens.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return httpx.ErrInvalidOrExpired
		}
		return err
	}
	if !reset.Usable(time.Now()) {
		return httpx.ErrInvalidOrExpired
	}
	return nil
}

// PerformPasswordReset consumes a reset token and stores the new password
// hash. The token is burned first so two concurrent resets cannot both
// succeed, and every refresh token the user holds is revoked afterwards.
func (s *Service) PerformPasswordReset(ctx context.Context, token, newPassword string) error {
	reset, err := s.resetTokens.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return httpx.ErrInvalidOrExpired
		}
		return err
	}
	if !reset.Usable(time.Now()) {
		return httpx.ErrInvalidOrExpired
	}

	if _, err := s.resetTokens.MarkUsed(ctx, token); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return httpx.ErrInvalidOrExpired
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("session: hash password: %w", err)
	}
	hashed := string(hash)
	if _, err := s.users.Update(ctx, reset.UserID, users.UpdateFields{PasswordHash: &hashed}); err != nil {
		return err
	}

	if count, err := s.refreshTokens.RevokeAllForUser(ctx, reset.UserID); err != nil {
		s.logger.Error("revoke tokens after reset", slog.String("userID", reset.UserID), slog.Any("error", err))
	} else if count > 0 {
		s.logger.Info("revoked tokens after reset", slog.String("userID", reset.UserID), slog.Int("count", count))
	}
	s.logger.Info("password reset completed", slog.String("userID", reset.UserID))
	return nil
}

func (s *Service) mintPair(ctx context.Context, user *users.User, clientIP string) (*TokenPair, error) {
	access, err := s.issuer.IssueAccessToken(tokens.Identity{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.NewRefreshToken(user.ID, clientIP)
	if err != nil {
		return nil, err
	}
	if err := s.refreshTokens.Create(ctx, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}
