package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token byte lengths before hex encoding. A refresh token is 80 hex chars on
// the wire, a reset token 64.
const (
	refreshTokenBytes = 40
	resetTokenBytes   = 32
)

// Verification failures surfaced to the validate-token endpoint. Login and
// refresh collapse both into a single generic error.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims are the identity assertions embedded in an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Identity is the subject an access token was issued for.
type Identity struct {
	ID       string
	Username string
	Role     string
}

// Issuer mints and verifies credentials. It holds no storage; persisting
// refresh and reset tokens is the caller's job.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// NewIssuer constructs an Issuer from the signing secret and token lifetimes.
func NewIssuer(secret string, accessTTL, refreshTTL, resetTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
	}
}

// IssueAccessToken signs a short-lived HS256 token carrying the identity.
func (i *Issuer) IssueAccessToken(identity Identity) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		UserID:   identity.ID,
		Username: identity.Username,
		Role:     identity.Role,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("tokens: sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature and expiry, distinguishing an expired
// token from an otherwise invalid one.
func (i *Issuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewRefreshToken generates an opaque refresh token for the user.
func (i *Issuer) NewRefreshToken(userID, clientIP string) (*RefreshToken, error) {
	value, err := randomHex(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &RefreshToken{
		Token:       value,
		UserID:      userID,
		Expires:     now.Add(i.refreshTTL),
		CreatedByIP: clientIP,
		CreatedAt:   now,
	}, nil
}

// NewResetToken generates a single-use password-reset token for the user.
func (i *Issuer) NewResetToken(userID string) (*PasswordResetToken, error) {
	value, err := randomHex(resetTokenBytes)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &PasswordResetToken{
		Token:     value,
		UserID:    userID,
		Expires:   now.Add(i.resetTTL),
		CreatedAt: now,
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tokens: read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
