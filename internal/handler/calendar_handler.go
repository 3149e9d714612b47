package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sjdodge123/uptime-atlas/internal/middleware"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

// CalendarHandler serves calendar events, manual entries and panel resyncs
type CalendarHandler struct {
	calendar  *service.CalendarService
	settings  *service.SettingsService
	fetcher   service.ScheduleFetcher
	idGen     *helpers.IDGenerator
	validator *helpers.CustomValidator
	log       *logger.Logger
}

func NewCalendarHandler(calendar *service.CalendarService, settings *service.SettingsService, fetcher service.ScheduleFetcher, idGen *helpers.IDGenerator, validator *helpers.CustomValidator, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		calendar:  calendar,
		settings:  settings,
		fetcher:   fetcher,
		idGen:     idGen,
		validator: validator,
		log:       log,
	}
}

// GetEvents handles GET /api/calendar/events. It runs a non-forced sync
// first; when the panel is unreachable the stored events are served anyway,
// flagged as stale.
func (h *CalendarHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.settings.GetPelicanConfig(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to load pelican config")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	stale := false
	reason := ""
	sync, err := h.calendar.Sync(ctx, cfg, false)
	switch {
	case err != nil:
		h.log.WithError(err).Error("calendar sync failed")
		stale = true
		reason = "sync_failed"
	case !sync.OK:
		stale = true
		reason = sync.Reason
	}

	events, sources, err := h.calendar.ListWindowEvents(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to list calendar events")
		writeError(w, http.StatusInternalServerError, "Failed to load events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      !stale,
		"events":  events,
		"sources": sources,
		"stale":   stale,
		"reason":  reason,
	})
}

type createEventRequest struct {
	Game        string `json:"game" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Start       string `json:"start" validate:"required"`
	Stop        string `json:"stop"`
	Description string `json:"description"`
}

// CreateEvent handles POST /api/calendar/events. Manual events get a local
// schedule id so windowed syncs never touch them.
func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeFieldErrors(w, helpers.FieldErrors(err))
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start time, expected RFC 3339")
		return
	}
	var stop *time.Time
	if req.Stop != "" {
		parsed, err := time.Parse(time.RFC3339, req.Stop)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid stop time, expected RFC 3339")
			return
		}
		stop = &parsed
	}

	user := middleware.UserFromContext(r.Context())
	event, err := h.calendar.CreateManualEvent(
		r.Context(),
		h.idGen.GenerateLocalScheduleID(),
		req.Game,
		req.Name,
		start,
		stop,
		req.Description,
		user.Username,
	)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Invalid event")
			return
		}
		h.log.WithError(err).Error("failed to create manual event")
		writeError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"event": event})
}

// DeleteEvent handles DELETE /api/calendar/events/{id}. Non-admins may only
// delete events they created.
func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id")
		return
	}

	user := middleware.UserFromContext(r.Context())
	if err := h.calendar.DeleteEvent(r.Context(), id, user.Username, user.CanManage()); err != nil {
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "Event not found")
		case errors.Is(err, service.ErrNotAuthorized):
			writeError(w, http.StatusForbidden, "You can only delete your own events")
		default:
			h.log.WithError(err).Error("failed to delete event")
			writeError(w, http.StatusInternalServerError, "Failed to delete event")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// DeleteSource handles DELETE /api/calendar/sources/{gameID}. It soft-deletes
// every event of the game.
func (h *CalendarHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseUint(r.PathValue("gameID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game id")
		return
	}

	deleted, err := h.calendar.DeleteSource(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "Game not found")
			return
		}
		h.log.WithError(err).Error("failed to delete source")
		writeError(w, http.StatusInternalServerError, "Failed to delete source")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": deleted})
}

// ResyncSource handles POST /api/calendar/sources/{gameID}/resync. It
// rebuilds one game's events from the panel, manual entries included.
func (h *CalendarHandler) ResyncSource(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseUint(r.PathValue("gameID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid game id")
		return
	}

	ctx := r.Context()
	game, err := h.calendar.GetGame(ctx, gameID)
	if err != nil {
		h.log.WithError(err).Error("failed to load game")
		writeError(w, http.StatusInternalServerError, "Failed to load game")
		return
	}
	if game == nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}

	cfg, err := h.settings.GetPelicanConfig(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	result, err := h.calendar.ResyncGame(ctx, cfg, game)
	if err != nil {
		h.log.WithError(err).Error("game resync failed")
		writeError(w, http.StatusInternalServerError, "Resync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Resync handles POST /api/pelican/resync. The forced sync also replaces
// soft-deleted panel events inside the window.
func (h *CalendarHandler) Resync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.settings.GetPelicanConfig(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	result, err := h.calendar.Sync(ctx, cfg, true)
	if err != nil {
		h.log.WithError(err).Error("forced sync failed")
		writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Schedules handles GET /api/pelican/schedules, a raw view of what the panel
// currently reports.
func (h *CalendarHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.settings.GetPelicanConfig(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	result := h.fetcher.FetchSchedules(ctx, cfg)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        result.OK,
		"reason":    result.Reason,
		"schedules": result.Schedules,
	})
}
