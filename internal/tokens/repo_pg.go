package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

// PGRefreshTokenRepository implements RefreshTokenRepository on PostgreSQL.
// State transitions ride on conditional single-row updates, so rotation is
// atomic without explicit locking.
type PGRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPGRefreshTokenRepository constructs a PostgreSQL refresh token repository.
func NewPGRefreshTokenRepository(pool *pgxpool.Pool) *PGRefreshTokenRepository {
	return &PGRefreshTokenRepository{pool: pool}
}

const refreshColumns = "token, user_id, expires, revoked, created_by_ip, created_at"

func (r *PGRefreshTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (token, user_id, expires, revoked, created_by_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query,
		token.Token, token.UserID, token.Expires, token.Revoked,
		toText(token.CreatedByIP), token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("tokens: create refresh token: %w", err)
	}
	return nil
}

func (r *PGRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE token = $1", token)
	return scanRefreshToken(row, "find")
}

func (r *PGRefreshTokenRepository) FindLatestForUser(ctx context.Context, userID string) (*RefreshToken, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+refreshColumns+" FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1", userID)
	return scanRefreshToken(row, "find latest")
}

func (r *PGRefreshTokenRepository) Revoke(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires > now()
		RETURNING `+refreshColumns, token)
	return scanRefreshToken(row, "revoke")
}

func (r *PGRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE", userID)
	if err != nil {
		return 0, fmt.Errorf("tokens: revoke all: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PGRefreshTokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM refresh_tokens WHERE expires <= now()")
	if err != nil {
		return 0, fmt.Errorf("tokens: delete expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRefreshToken(row pgx.Row, op string) (*RefreshToken, error) {
	var t RefreshToken
	var ip pgtype.Text
	err := row.Scan(&t.Token, &t.UserID, &t.Expires, &t.Revoked, &ip, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("tokens: %s refresh token: %w", op, err)
	}
	if ip.Valid {
		t.CreatedByIP = ip.String
	}
	return &t, nil
}

// PGResetTokenRepository implements ResetTokenRepository on PostgreSQL.
type PGResetTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPGResetTokenRepository constructs a PostgreSQL reset token repository.
func NewPGResetTokenRepository(pool *pgxpool.Pool) *PGResetTokenRepository {
	return &PGResetTokenRepository{pool: pool}
}

const resetColumns = "token, user_id, expires, used, created_at"

func (r *PGResetTokenRepository) Create(ctx context.Context, token *PasswordResetToken) error {
	const query = `
		INSERT INTO password_reset_tokens (token, user_id, expires, used, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query,
		token.Token, token.UserID, token.Expires, token.Used, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("tokens: create reset token: %w", err)
	}
	return nil
}

func (r *PGResetTokenRepository) FindByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+resetColumns+" FROM password_reset_tokens WHERE token = $1", token)
	return scanResetToken(row, "find")
}

func (r *PGResetTokenRepository) MarkUsed(ctx context.Context, token string) (*PasswordResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET used = TRUE
		WHERE token = $1 AND used = FALSE
		RETURNING `+resetColumns, token)
	return scanResetToken(row, "mark used")
}

func (r *PGResetTokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM password_reset_tokens WHERE expires <= now()")
	if err != nil {
		return 0, fmt.Errorf("tokens: delete expired reset tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanResetToken(row pgx.Row, op string) (*PasswordResetToken, error) {
	var t PasswordResetToken
	err := row.Scan(&t.Token, &t.UserID, &t.Expires, &t.Used, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("tokens: %s reset token: %w", op, err)
	}
	return &t, nil
}

func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

var (
	_ RefreshTokenRepository = (*PGRefreshTokenRepository)(nil)
	_ ResetTokenRepository   = (*PGResetTokenRepository)(nil)
)
