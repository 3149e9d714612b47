package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sjdodge123/uptime-atlas/internal/middleware"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

// SettingsHandler serves integration settings and dashboard widgets
type SettingsHandler struct {
	settings  *service.SettingsService
	validator *helpers.CustomValidator
	log       *logger.Logger
}

func NewSettingsHandler(settings *service.SettingsService, validator *helpers.CustomValidator, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings:  settings,
		validator: validator,
		log:       log,
	}
}

// GetSettings handles GET /api/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetSettings(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to load settings")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles POST /api/settings. Each provided section is merged
// onto its defaults and stored; omitted sections stay untouched.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload map[string]json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := h.settings.UpdateSettings(r.Context(), payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings payload")
		return
	}

	settings, err := h.settings.GetSettings(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to reload settings")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// ListWidgets handles GET /api/widgets.
func (h *SettingsHandler) ListWidgets(w http.ResponseWriter, r *http.Request) {
	widgets, err := h.settings.ListWidgets(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list widgets")
		writeError(w, http.StatusInternalServerError, "Failed to load widgets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"widgets": widgets})
}

type createWidgetRequest struct {
	WidgetKey string `json:"widget_key" validate:"required"`
}

// CreateWidget handles POST /api/widgets/create. Re-creating an existing
// widget re-enables it instead of duplicating it.
func (h *SettingsHandler) CreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	action, err := h.settings.CreateWidget(r.Context(), req.WidgetKey)
	if err != nil {
		if errors.Is(err, service.ErrUnknownWidget) {
			writeError(w, http.StatusNotFound, "Unknown widget")
			return
		}
		h.log.WithError(err).Error("failed to create widget")
		writeError(w, http.StatusInternalServerError, "Failed to create widget")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "action": action})
}

type layoutEntry struct {
	WidgetKey string `json:"widget_key" validate:"required"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	W         int    `json:"w" validate:"min=1"`
	H         int    `json:"h" validate:"min=1"`
}

type updateLayoutRequest struct {
	Layouts []layoutEntry `json:"layouts" validate:"required,dive"`
}

// UpdateLayout handles POST /api/widgets/layout.
func (h *SettingsHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	var req updateLayoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	layouts := make([]models.Widget, 0, len(req.Layouts))
	for _, entry := range req.Layouts {
		layouts = append(layouts, models.Widget{
			WidgetKey: entry.WidgetKey,
			X:         entry.X,
			Y:         entry.Y,
			W:         entry.W,
			H:         entry.H,
		})
	}
	if err := h.settings.UpdateLayout(r.Context(), layouts); err != nil {
		h.log.WithError(err).Error("failed to update layout")
		writeError(w, http.StatusInternalServerError, "Failed to update layout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetWidgetEnabled handles POST /api/widgets/{key}/enabled.
func (h *SettingsHandler) SetWidgetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	if err := h.settings.SetWidgetEnabled(r.Context(), r.PathValue("key"), *req.Enabled); err != nil {
		h.log.WithError(err).Error("failed to toggle widget")
		writeError(w, http.StatusInternalServerError, "Failed to update widget")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Bootstrap handles GET /api/bootstrap: everything the dashboard needs on
// first paint.
func (h *SettingsHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	widgets, err := h.settings.ListWidgets(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to list widgets")
		writeError(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}
	payload := map[string]interface{}{
		"widgets": widgets,
	}
	if user := middleware.UserFromContext(ctx); user != nil {
		payload["user"] = user
		// Settings carry panel credentials, so only admins get them here.
		if user.CanManage() {
			settings, err := h.settings.GetSettings(ctx)
			if err != nil {
				h.log.WithError(err).Error("failed to load settings")
				writeError(w, http.StatusInternalServerError, "Failed to load dashboard")
				return
			}
			payload["settings"] = settings
		}
	}
	writeJSON(w, http.StatusOK, payload)
}
