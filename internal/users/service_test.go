package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

type mockRevoker struct {
	calls []string
	count int
	err   error
}

func (m *mockRevoker) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	m.calls = append(m.calls, userID)
	return m.count, m.err
}

func newTestService(t *testing.T, allowRegistration bool) (*Service, *mockRevoker) {
	t.Helper()
	revoker := &mockRevoker{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, newFileRepo(t), revoker, allowRegistration)
	return svc, revoker
}

func TestRegisterCreatesDefaultRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	user, err := svc.Register(ctx, "alice", "Alice@Example.com", "password123")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active)

	// The stored hash must verify against the original password.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestRegisterClosed(t *testing.T) {
	svc, _ := newTestService(t, false)

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "password123")
	assert.ErrorIs(t, err, httpx.ErrRegistrationClosed)
}

func TestCreateValidatesRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	_, err := svc.Create(ctx, CreateParams{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
		Role:     "superuser",
	})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	admin, err := svc.Create(ctx, CreateParams{
		Username: "root",
		Email:    "root@example.com",
		Password: "password123",
		Role:     RoleAdmin,
		Active:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, admin.Role)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	user, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-password", "newpassword1")
	assert.ErrorIs(t, err, httpx.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "password123", "newpassword1"))

	refreshed, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(refreshed.PasswordHash), []byte("newpassword1")))
}

func TestDeleteRejectsSelf(t *testing.T) {
	ctx := context.Background()
	svc, revoker := newTestService(t, true)

	user, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	err = svc.Delete(ctx, user.ID, user.ID)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, revoker.calls)
}

func TestDeleteCascadesTokenRevocation(t *testing.T) {
	ctx := context.Background()
	svc, revoker := newTestService(t, true)
	revoker.count = 3

	user, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID, "someone-else"))
	assert.Equal(t, []string{user.ID}, revoker.calls)

	err = svc.Delete(ctx, user.ID, "someone-else")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestBootstrapSeedsAdminOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	require.NoError(t, svc.Bootstrap(ctx, "changeme123"))

	users, total, err := svc.List(ctx, ListFilter{}, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, RoleAdmin, users[0].Role)

	// A second bootstrap must not add another account.
	require.NoError(t, svc.Bootstrap(ctx, "changeme123"))
	_, total, err = svc.List(ctx, ListFilter{}, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestBootstrapSkippedWithoutPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, true)

	require.NoError(t, svc.Bootstrap(ctx, ""))
	_, total, err := svc.List(ctx, ListFilter{}, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}
