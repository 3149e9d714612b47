package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sjdodge123/uptime-atlas/internal/middleware"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
	"github.com/sjdodge123/uptime-atlas/pkg/metrics"
)

// RouterDeps bundles everything the router mounts.
type RouterDeps struct {
	Calendar *CalendarHandler
	Kuma     *KumaHandler
	Auth     *AuthHandler
	Settings *SettingsHandler

	Authenticator middleware.Authenticator
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// NewRouter mounts all routes and wraps them in the shared middleware chain.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	mux.HandleFunc("POST /api/auth/login", deps.Auth.Login)
	mux.HandleFunc("POST /api/auth/setup", deps.Auth.Setup)
	mux.HandleFunc("POST /api/auth/logout", deps.Auth.Logout)
	mux.HandleFunc("GET /api/auth/status", deps.Auth.Status)

	// Calendar
	mux.HandleFunc("GET /api/calendar/events", deps.Calendar.GetEvents)
	mux.Handle("POST /api/calendar/events", requireAdmin(deps.Calendar.CreateEvent))
	mux.Handle("DELETE /api/calendar/events/{id}", requireLogin(deps.Calendar.DeleteEvent))
	mux.Handle("DELETE /api/calendar/sources/{gameID}", requireAdmin(deps.Calendar.DeleteSource))
	mux.Handle("POST /api/calendar/sources/{gameID}/resync", requireAdmin(deps.Calendar.ResyncSource))

	// Pelican
	mux.Handle("POST /api/pelican/resync", requireAdmin(deps.Calendar.Resync))
	mux.HandleFunc("GET /api/pelican/schedules", deps.Calendar.Schedules)

	// Kuma
	mux.HandleFunc("GET /api/kuma/summary", deps.Kuma.Summary)

	// Settings and widgets
	mux.Handle("GET /api/settings", requireAdmin(deps.Settings.GetSettings))
	mux.Handle("POST /api/settings", requireAdmin(deps.Settings.UpdateSettings))
	mux.Handle("GET /api/widgets", requireAdmin(deps.Settings.ListWidgets))
	mux.Handle("POST /api/widgets/create", requireAdmin(deps.Settings.CreateWidget))
	mux.Handle("POST /api/widgets/layout", requireAdmin(deps.Settings.UpdateLayout))
	mux.Handle("POST /api/widgets/{key}/enabled", requireAdmin(deps.Settings.SetWidgetEnabled))
	mux.HandleFunc("GET /api/bootstrap", deps.Settings.Bootstrap)

	// Users and profile
	mux.Handle("GET /api/users", requireRoot(deps.Auth.ListUsers))
	mux.Handle("POST /api/users/{username}/role", requireRoot(deps.Auth.UpdateRole))
	mux.Handle("POST /api/users/{username}/timezone", requireRoot(deps.Auth.UpdateUserTimezone))
	mux.Handle("POST /api/profile/timezone", requireLogin(deps.Auth.UpdateProfileTimezone))
	mux.Handle("POST /api/profile/password", requireLogin(deps.Auth.UpdateProfilePassword))

	var handler http.Handler = mux
	handler = middleware.SessionMiddleware(deps.Authenticator)(handler)
	handler = middleware.CORSMiddleware(handler)
	if deps.Metrics != nil {
		handler = deps.Metrics.HTTPMiddleware(handler)
	}
	if deps.Logger != nil {
		handler = deps.Logger.HTTPMiddleware(handler)
	}
	return handler
}

func requireLogin(h http.HandlerFunc) http.Handler {
	return middleware.RequireLogin(h)
}

func requireAdmin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func requireRoot(h http.HandlerFunc) http.Handler {
	return middleware.RequireRoot(h)
}
