package session_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mukkaboot-ai/auth-service/internal/filestore"
	"github.com/mukkaboot-ai/auth-service/internal/session"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
	"github.com/mukkaboot-ai/auth-service/internal/users"
	_ "github.com/mukkaboot-ai/auth-service/testing"
)

type handlerEnv struct {
	router chi.Router
}

func newHandlerEnv(t *testing.T, loginLimit int, echoResetToken bool) *handlerEnv {
	t.Helper()
	store, err := filestore.Open(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userRepo := users.NewFileRepository(store)
	issuer := tokens.NewIssuer("test-secret", time.Hour, 7*24*time.Hour, time.Hour)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	if _, err := userRepo.Create(context.Background(), &users.User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		Role:         users.RoleUser,
		Active:       true,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	svc := session.NewService(
		logger,
		userRepo,
		tokens.NewFileRefreshTokenRepository(store),
		tokens.NewFileResetTokenRepository(store),
		issuer,
		nil,
		nil,
		true,
	)
	handler := session.NewHandler(logger, svc, loginLimit, time.Minute, echoResetToken)

	router := chi.NewRouter()
	handler.MountRoutes(router)
	return &handlerEnv{router: router}
}

func (e *handlerEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", res.Body.String(), err)
	}
	return body
}

func TestLoginReturnsTokenPair(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	res := env.post(t, "/login", `{"username":"alice","password":"password123"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	body := decodeBody(t, res)
	if body["accessToken"] == "" || body["refreshToken"] == "" {
		t.Fatal("expected both tokens in response")
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object, got %T", body["user"])
	}
	if user["username"] != "alice" {
		t.Fatalf("unexpected user payload: %v", user)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatal("password hash leaked in login response")
	}
}

func TestLoginFailureBodiesAreIdentical(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	unknownUser := env.post(t, "/login", `{"username":"ghost","password":"password123"}`)
	wrongPassword := env.post(t, "/login", `{"username":"alice","password":"wrong"}`)

	if unknownUser.Code != http.StatusUnauthorized || wrongPassword.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknownUser.Code, wrongPassword.Code)
	}
	// Byte-identical bodies: the response must not reveal whether the
	// username or the password was wrong.
	if unknownUser.Body.String() != wrongPassword.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", unknownUser.Body.String(), wrongPassword.Body.String())
	}
}

func TestLoginRateLimit(t *testing.T) {
	limit := 3
	env := newHandlerEnv(t, limit, false)

	for i := 0; i < limit; i++ {
		res := env.post(t, "/login", `{"username":"alice","password":"wrong"}`)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, res.Code)
		}
	}

	res := env.post(t, "/login", `{"username":"alice","password":"password123"}`)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts, got %d", limit, res.Code)
	}
	body := decodeBody(t, res)
	if body["error"] == "" {
		t.Fatal("expected error message in 429 body")
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	login := env.post(t, "/login", `{"username":"alice","password":"password123"}`)
	refreshToken := decodeBody(t, login)["refreshToken"].(string)

	res := env.post(t, "/refresh-token", `{"token":"`+refreshToken+`"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	rotated := body["refreshToken"].(string)
	if rotated == refreshToken {
		t.Fatal("expected a new refresh token")
	}
	if body["accessToken"] == "" {
		t.Fatal("expected access token in refresh response")
	}

	// Replaying the consumed token must fail.
	replay := env.post(t, "/refresh-token", `{"token":"`+refreshToken+`"}`)
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replay, got %d", replay.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	// Unknown tokens still log out cleanly.
	res := env.post(t, "/logout", `{"token":"never-issued"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	res = env.post(t, "/logout", ``)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without body, got %d", res.Code)
	}
}

func TestValidateTokenEndpoint(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	login := env.post(t, "/login", `{"username":"alice","password":"password123"}`)
	accessToken := decodeBody(t, login)["accessToken"].(string)

	res := env.post(t, "/validate-token", `{"token":"`+accessToken+`"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["valid"] != true {
		t.Fatalf("expected valid=true, got %v", body["valid"])
	}
	user := body["user"].(map[string]any)
	if user["id"] != "u1" || user["username"] != "alice" || user["role"] != "user" {
		t.Fatalf("unexpected claims: %v", user)
	}

	res = env.post(t, "/validate-token", `{"token":"garbage"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	body = decodeBody(t, res)
	if body["valid"] != false {
		t.Fatalf("expected valid=false, got %v", body["valid"])
	}
}

func TestPasswordResetFlowOverHTTP(t *testing.T) {
	env := newHandlerEnv(t, 10, true)

	res := env.post(t, "/password-reset/request", `{"email":"alice@example.com"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	resetToken, ok := decodeBody(t, res)["resetToken"].(string)
	if !ok || resetToken == "" {
		t.Fatal("expected reset token echoed outside production")
	}

	res = env.post(t, "/password-reset/validate", `{"token":"`+resetToken+`"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	res = env.post(t, "/password-reset/reset", `{"token":"`+resetToken+`","password":"newpassword1"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	// The burned token is now a 400 on both reset endpoints.
	res = env.post(t, "/password-reset/validate", `{"token":"`+resetToken+`"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for used token, got %d", res.Code)
	}
	res = env.post(t, "/password-reset/reset", `{"token":"`+resetToken+`","password":"newpassword2"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for used token, got %d", res.Code)
	}

	login := env.post(t, "/login", `{"username":"alice","password":"newpassword1"}`)
	if login.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", login.Code)
	}
}

func TestPasswordResetRequestHidesUnknownEmail(t *testing.T) {
	env := newHandlerEnv(t, 10, true)

	known := env.post(t, "/password-reset/request", `{"email":"alice@example.com"}`)
	unknown := env.post(t, "/password-reset/request", `{"email":"ghost@example.com"}`)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", known.Code, unknown.Code)
	}
	if msg := decodeBody(t, unknown)["message"]; msg != decodeBody(t, known)["message"] {
		t.Fatal("expected identical messages for known and unknown emails")
	}
	if _, leaked := decodeBody(t, unknown)["resetToken"]; leaked {
		t.Fatal("unknown email must not produce a reset token")
	}
}

func TestPasswordResetTokenNotEchoedInProductionMode(t *testing.T) {
	env := newHandlerEnv(t, 10, false)

	res := env.post(t, "/password-reset/request", `{"email":"alice@example.com"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if _, leaked := decodeBody(t, res)["resetToken"]; leaked {
		t.Fatal("reset token must not be echoed in production")
	}
}
