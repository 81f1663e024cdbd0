package tokens

import "time"

// RefreshToken is a long-lived opaque credential. The token value carries no
// identity; the owning user is recovered only through a store lookup.
type RefreshToken struct {
	Token       string
	UserID      string
	Expires     time.Time
	Revoked     bool
	CreatedByIP string
	CreatedAt   time.Time
}

// Usable reports whether the token can still mint a new pair.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && t.Expires.After(now)
}

// PasswordResetToken is a single-use credential for the reset flow.
type PasswordResetToken struct {
	Token     string
	UserID    string
	Expires   time.Time
	Used      bool
	CreatedAt time.Time
}

// Usable reports whether the token can still authorize a reset.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && t.Expires.After(now)
}
