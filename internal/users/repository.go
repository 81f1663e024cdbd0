package users

import (
	"context"
	"time"
)

// ListFilter narrows List and Count results.
type ListFilter struct {
	Role   *string
	Active *bool
}

// Page bounds a List call.
type Page struct {
	Skip  int
	Limit int
}

// UpdateFields carries a partial update; nil fields are left untouched.
type UpdateFields struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Role         *string
	Active       *bool
	Verified     *bool
	LastLogin    *time.Time
}

// Repository defines persistence operations for user accounts. Both the
// postgres and the flat-file backend implement it; callers depend only on
// this interface.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	// Create persists a new user and fails with httpx.ErrDuplicate when the
	// username or email is already taken.
	Create(ctx context.Context, user *User) (*User, error)
	// Update applies a partial update and fails with httpx.ErrNotFound for
	// unknown ids.
	Update(ctx context.Context, id string, fields UpdateFields) (*User, error)
	// Delete removes the user, reporting whether a record was deleted.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns users newest-created first.
	List(ctx context.Context, filter ListFilter, page Page) ([]User, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}
