package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
	"github.com/mukkaboot-ai/auth-service/internal/rbac"
)

// Handler wires HTTP endpoints for registration, profile access, and the
// admin-only user management surface.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		validator: validator.New(),
	}
}

// MountRoutes registers user routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)

	r.Route("/users", func(r chi.Router) {
		r.Use(h.rbac.Authenticate)

		r.Get("/me", h.me)
		r.Put("/me", h.updateMe)

		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAdmin)
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Get("/{id}", h.get)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.remove)
		})
	})
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	user, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.logger.Warn("register failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user.Public(),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	user, err := h.service.Get(r.Context(), identity.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

type updateMeRequest struct {
	Email           *string `json:"email" validate:"omitempty,email"`
	CurrentPassword *string `json:"currentPassword"`
	NewPassword     *string `json:"newPassword" validate:"omitempty,min=8"`
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())

	var req updateMeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if req.NewPassword != nil {
		if req.CurrentPassword == nil {
			httpx.Error(w, http.StatusBadRequest, "current password is required to change password")
			return
		}
		if err := h.service.ChangePassword(r.Context(), identity.ID, *req.CurrentPassword, *req.NewPassword); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	user, err := h.service.UpdateProfile(r.Context(), identity.ID, req.Email)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if role := r.URL.Query().Get("role"); role != "" {
		filter.Role = &role
	}
	if active := r.URL.Query().Get("active"); active != "" {
		val := active == "true"
		filter.Active = &val
	}

	page := Page{Limit: 100}
	if s := r.URL.Query().Get("skip"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			page.Skip = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			page.Limit = parsed
		}
	}

	list, total, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	public := make([]Public, 0, len(list))
	for i := range list {
		public = append(public, list[i].Public())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users": public,
		"pagination": map[string]int{
			"total": total,
			"skip":  page.Skip,
			"limit": page.Limit,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	Active   *bool  `json:"active"`
	Verified *bool  `json:"verified"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	params := CreateParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Active:   true,
		Verified: true,
	}
	if req.Active != nil {
		params.Active = *req.Active
	}
	if req.Verified != nil {
		params.Verified = *req.Verified
	}

	user, err := h.service.Create(r.Context(), params)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user":    user.Public(),
	})
}

type updateUserRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
	Active   *bool   `json:"active"`
	Verified *bool   `json:"verified"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	user, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Active:   req.Active,
		Verified: req.Verified,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	identity, _ := rbac.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), identity.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
}

func validationMessage(err error) string {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		switch first.Tag() {
		case "required":
			return first.Field() + " is required"
		case "email":
			return first.Field() + " must be a valid email address"
		case "min":
			return first.Field() + " is too short"
		case "max":
			return first.Field() + " is too long"
		default:
			return first.Field() + " is invalid"
		}
	}
	return "validation failed"
}
