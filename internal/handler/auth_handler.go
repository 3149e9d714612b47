package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/sjdodge123/uptime-atlas/internal/middleware"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

const sessionCookieTTL = 24 * time.Hour

// AuthHandler serves login, logout and first-run setup
type AuthHandler struct {
	auth      *service.AuthService
	validator *helpers.CustomValidator
	log       *logger.Logger
}

func NewAuthHandler(auth *service.AuthService, validator *helpers.CustomValidator, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		validator: validator,
		log:       log,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login. On success the token is both returned
// in the body and set as a session cookie for browser clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.log.WithError(err).Error("login failed")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

type setupRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
	Timezone string `json:"timezone"`
}

// Setup handles POST /api/auth/setup. Only available before the first user
// exists; the created account is root and logged in immediately.
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	token, user, err := h.auth.Setup(r.Context(), req.Username, req.Password, req.Timezone)
	if err != nil {
		if errors.Is(err, service.ErrSetupDisabled) {
			writeError(w, http.StatusForbidden, "Setup is no longer available")
			return
		}
		h.log.WithError(err).Error("setup failed")
		writeError(w, http.StatusInternalServerError, "Setup failed")
		return
	}

	setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": token, "user": user})
}

// Logout handles POST /api/auth/logout. Unknown tokens are a no-op.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.ExtractToken(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.log.WithError(err).Warn("failed to remove session")
		}
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Status handles GET /api/auth/status: the current user, if any, and whether
// first-run setup is still open.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	setupAvailable, err := h.auth.SetupAvailable(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to check setup state")
		writeError(w, http.StatusInternalServerError, "Failed to load status")
		return
	}

	payload := map[string]interface{}{
		"setup_available": setupAvailable,
		"authenticated":   false,
	}
	if user := middleware.UserFromContext(r.Context()); user != nil {
		payload["authenticated"] = true
		payload["user"] = user
	}
	writeJSON(w, http.StatusOK, payload)
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin root"`
}

// UpdateRole handles POST /api/users/{username}/role, root only.
func (h *AuthHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	username := r.PathValue("username")
	if err := h.auth.UpdateRole(r.Context(), username, req.Role); err != nil {
		h.log.WithError(err).Error("failed to update role")
		writeError(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type updateTimezoneRequest struct {
	Timezone string `json:"timezone" validate:"required"`
}

// UpdateUserTimezone handles POST /api/users/{username}/timezone, root only.
func (h *AuthHandler) UpdateUserTimezone(w http.ResponseWriter, r *http.Request) {
	var req updateTimezoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown timezone")
		return
	}

	username := r.PathValue("username")
	if err := h.auth.UpdateTimezone(r.Context(), username, req.Timezone); err != nil {
		h.log.WithError(err).Error("failed to update timezone")
		writeError(w, http.StatusInternalServerError, "Failed to update timezone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ListUsers handles GET /api/users, root only.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list users")
		writeError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// UpdateProfileTimezone handles POST /api/profile/timezone for the logged-in
// user.
func (h *AuthHandler) UpdateProfileTimezone(w http.ResponseWriter, r *http.Request) {
	var req updateTimezoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown timezone")
		return
	}

	user := middleware.UserFromContext(r.Context())
	if err := h.auth.UpdateTimezone(r.Context(), user.Username, req.Timezone); err != nil {
		h.log.WithError(err).Error("failed to update timezone")
		writeError(w, http.StatusInternalServerError, "Failed to update timezone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

// UpdateProfilePassword handles POST /api/profile/password for the logged-in
// user. The current password must match.
func (h *AuthHandler) UpdateProfilePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	user := middleware.UserFromContext(r.Context())
	if err := h.auth.UpdatePassword(r.Context(), user.Username, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		h.log.WithError(err).Error("failed to update password")
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
