package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
	"github.com/mukkaboot-ai/auth-service/internal/tokens"
)

// Handler wires HTTP endpoints for the authentication flows.
type Handler struct {
	logger          *slog.Logger
	service         *Service
	validator       *validator.Validate
	loginRateLimit  int
	loginRateWindow time.Duration
	echoResetToken  bool
}

// NewHandler constructs a Handler. echoResetToken controls whether the reset
// request response includes the token itself; it must be false in production.
func NewHandler(logger *slog.Logger, service *Service, loginRateLimit int, loginRateWindow time.Duration, echoResetToken bool) *Handler {
	return &Handler{
		logger:          logger,
		service:         service,
		validator:       validator.New(),
		loginRateLimit:  loginRateLimit,
		loginRateWindow: loginRateWindow,
		echoResetToken:  echoResetToken,
	}
}

// MountRoutes registers session routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			h.loginRateLimit,
			h.loginRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Error(w, http.StatusTooManyRequests, "too many login attempts, please try again later")
			}),
		))
		r.Post("/login", h.login)
	})

	r.Post("/refresh-token", h.refresh)
	r.Post("/logout", h.logout)
	r.Post("/validate-token", h.validateToken)

	r.Route("/password-reset", func(r chi.Router) {
		r.Post("/request", h.requestReset)
		r.Post("/validate", h.validateReset)
		r.Post("/reset", h.performReset)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user":         user.Public(),
	})
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "refresh token is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	_, pair, err := h.service.Refresh(r.Context(), req.Token, r.RemoteAddr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "refresh token is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	// Revoking an unknown token is still a successful logout.
	if err := h.service.Logout(r.Context(), req.Token); err != nil {
		h.logger.Error("logout failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (h *Handler) validateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	claims, err := h.service.ValidateToken(req.Token)
	if err != nil {
		message := "invalid token"
		if errors.Is(err, tokens.ErrTokenExpired) {
			message = "token expired"
		}
		httpx.JSON(w, http.StatusUnauthorized, map[string]any{
			"valid": false,
			"error": message,
		})
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user": map[string]string{
			"id":       claims.UserID,
			"username": claims.Username,
			"role":     claims.Role,
		},
	})
}

type requestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	token, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	body := map[string]any{
		"message": "If the email exists, a password reset link has been sent",
	}
	if h.echoResetToken && token != "" {
		body["resetToken"] = token
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) validateReset(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.service.ValidateResetToken(r.Context(), req.Token); err != nil {
		// Bad reset tokens are a client error on this endpoint, not an
		// authentication failure.
		if errors.Is(err, httpx.ErrInvalidOrExpired) {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrInvalidOrExpired.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"valid": true})
}

type performResetRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) performReset(w http.ResponseWriter, r *http.Request) {
	var req performResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "token and password are required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := h.service.PerformPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, httpx.ErrInvalidOrExpired) {
			httpx.Error(w, http.StatusBadRequest, httpx.ErrInvalidOrExpired.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Password has been reset successfully"})
}
