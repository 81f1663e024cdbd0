package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(accessTTL time.Duration) *Issuer {
	return NewIssuer("test-secret", accessTTL, 7*24*time.Hour, time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	identity := Identity{ID: "u1", Username: "alice", Role: "admin"}

	signed, err := issuer.IssueAccessToken(identity)
	require.NoError(t, err)

	claims, err := issuer.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyExpiredAccessToken(t *testing.T) {
	issuer := newTestIssuer(-time.Minute)

	signed, err := issuer.IssueAccessToken(Identity{ID: "u1"})
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(signed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := newTestIssuer(time.Hour).IssueAccessToken(Identity{ID: "u1"})
	require.NoError(t, err)

	other := NewIssuer("other-secret", time.Hour, time.Hour, time.Hour)
	_, err = other.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	_, err := issuer.VerifyAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewRefreshTokenShape(t *testing.T) {
	issuer := newTestIssuer(time.Hour)

	token, err := issuer.NewRefreshToken("u1", "10.0.0.1")
	require.NoError(t, err)

	assert.Len(t, token.Token, 80)
	assert.Equal(t, "u1", token.UserID)
	assert.Equal(t, "10.0.0.1", token.CreatedByIP)
	assert.False(t, token.Revoked)
	assert.True(t, token.Usable(time.Now()))

	again, err := issuer.NewRefreshToken("u1", "")
	require.NoError(t, err)
	assert.NotEqual(t, token.Token, again.Token)
}

func TestNewResetTokenShape(t *testing.T) {
	issuer := newTestIssuer(time.Hour)

	token, err := issuer.NewResetToken("u1")
	require.NoError(t, err)

	assert.Len(t, token.Token, 64)
	assert.False(t, token.Used)
	assert.True(t, token.Usable(time.Now()))
	assert.False(t, token.Usable(time.Now().Add(2*time.Hour)))
}
