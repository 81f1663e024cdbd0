package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

const bcryptCost = 10

// RefreshTokenRevoker invalidates every refresh token a user holds. Deleting
// a user cascades through this so stolen or lingering tokens die with the
// account.
type RefreshTokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// Service wraps user account business rules.
type Service struct {
	logger            *slog.Logger
	repo              Repository
	revoker           RefreshTokenRevoker
	allowRegistration bool
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo Repository, revoker RefreshTokenRevoker, allowRegistration bool) *Service {
	return &Service{
		logger:            logger,
		repo:              repo,
		revoker:           revoker,
		allowRegistration: allowRegistration,
	}
}

// CreateParams carries the fields for a new account.
type CreateParams struct {
	Username string
	Email    string
	Password string
	Role     string
	Active   bool
	Verified bool
}

// Register creates a self-service account with the default role. Fails with
// httpx.ErrRegistrationClosed when registration is disabled.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if !s.allowRegistration {
		return nil, httpx.ErrRegistrationClosed
	}
	return s.create(ctx, CreateParams{
		Username: username,
		Email:    email,
		Password: password,
		Role:     RoleUser,
		Active:   true,
		Verified: true,
	})
}

// Create adds an account on behalf of an admin.
func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	if params.Role == "" {
		params.Role = RoleUser
	}
	if params.Role != RoleUser && params.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, params.Role)
	}
	return s.create(ctx, params)
}

func (s *Service) create(ctx context.Context, params CreateParams) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        strings.ToLower(params.Email),
		PasswordHash: string(hash),
		Role:         params.Role,
		Active:       params.Active,
		Verified:     params.Verified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created",
		slog.String("userID", created.ID),
		slog.String("role", created.Role),
	)
	return created, nil
}

// Get fetches a single user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns a page of users plus the total count for the filter.
func (s *Service) List(ctx context.Context, filter ListFilter, page Page) ([]User, int, error) {
	list, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateParams carries an admin-initiated partial update.
type UpdateParams struct {
	Username *string
	Email    *string
	Password *string
	Role     *string
	Active   *bool
	Verified *bool
}

// Update applies an admin update to an account.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*User, error) {
	if params.Role != nil && *params.Role != RoleUser && *params.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, *params.Role)
	}

	fields := UpdateFields{
		Username: params.Username,
		Role:     params.Role,
		Active:   params.Active,
		Verified: params.Verified,
	}
	if params.Email != nil {
		normalized := strings.ToLower(*params.Email)
		fields.Email = &normalized
	}
	if params.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("users: hash password: %w", err)
		}
		hashed := string(hash)
		fields.PasswordHash = &hashed
	}

	return s.repo.Update(ctx, id, fields)
}

// UpdateProfile lets a user change their own email address.
func (s *Service) UpdateProfile(ctx context.Context, id string, email *string) (*User, error) {
	fields := UpdateFields{}
	if email != nil {
		normalized := strings.ToLower(*email)
		fields.Email = &normalized
	}
	return s.repo.Update(ctx, id, fields)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return httpx.ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcryptCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	hashed := string(hash)
	_, err = s.repo.Update(ctx, id, UpdateFields{PasswordHash: &hashed})
	return err
}

// Delete removes an account and revokes all of its refresh tokens.
// Self-deletion is rejected.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return fmt.Errorf("%w: cannot delete your own account", httpx.ErrValidation)
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return httpx.ErrNotFound
	}

	if s.revoker != nil {
		count, err := s.revoker.RevokeAllForUser(ctx, id)
		if err != nil {
			// The account is already gone; the sweep will catch stragglers.
			s.logger.Error("revoke tokens after delete", slog.String("userID", id), slog.Any("error", err))
		} else if count > 0 {
			s.logger.Info("revoked tokens for deleted user", slog.String("userID", id), slog.Int("count", count))
		}
	}
	return nil
}

// Bootstrap seeds a default admin account when the store is empty. Used by
// the file backend so a fresh install is immediately usable.
func (s *Service) Bootstrap(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	total, err := s.repo.Count(ctx, ListFilter{})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}
	_, err = s.create(ctx, CreateParams{
		Username: "admin",
		Email:    "admin@localhost",
		Password: password,
		Role:     RoleAdmin,
		Active:   true,
		Verified: true,
	})
	if errors.Is(err, httpx.ErrDuplicate) {
		return nil
	}
	return err
}
