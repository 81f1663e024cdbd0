package tokens

import "context"

// RefreshTokenRepository persists refresh tokens. Both backends implement the
// same contract; Revoke succeeds at most once per token so two concurrent
// rotations of the same token cannot both win.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	// FindByToken looks up a token by value, fails with httpx.ErrNotFound.
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	// FindLatestForUser returns the most recently created token for a user.
	FindLatestForUser(ctx context.Context, userID string) (*RefreshToken, error)
	// Revoke marks a token revoked. It fails with httpx.ErrNotFound when the
	// token is unknown, already revoked, or past expiry — the compare-and-set
	// that makes rotation safe under concurrent use.
	Revoke(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeAllForUser revokes every live token a user holds.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// DeleteExpired removes expired tokens. Idempotent: deleting an
	// already-deleted token is a no-op.
	DeleteExpired(ctx context.Context) (int, error)
}

// ResetTokenRepository persists password-reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	FindByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// MarkUsed flips the single-use flag. Fails with httpx.ErrNotFound when
	// the token is unknown or already used.
	MarkUsed(ctx context.Context, token string) (*PasswordResetToken, error)
	DeleteExpired(ctx context.Context) (int, error)
}
