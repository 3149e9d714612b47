package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sjdodge123/uptime-atlas/internal/kuma"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/repository"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

const (
	kumaCacheKey = "kuma:summary"
	kumaCacheTTL = 30 * time.Second
)

// SummaryFetcher abstracts the Kuma client for testing
type SummaryFetcher interface {
	FetchSummary(ctx context.Context, cfg models.KumaConfig) kuma.Summary
}

// KumaHandler serves monitor summaries, with a short cache in front of the
// Kuma instance when Redis is configured.
type KumaHandler struct {
	client   SummaryFetcher
	settings *service.SettingsService
	cache    repository.CacheRepositoryInterface
	log      *logger.Logger
}

// NewKumaHandler creates a Kuma handler. cache may be nil.
func NewKumaHandler(client SummaryFetcher, settings *service.SettingsService, cache repository.CacheRepositoryInterface, log *logger.Logger) *KumaHandler {
	return &KumaHandler{
		client:   client,
		settings: settings,
		cache:    cache,
		log:      log,
	}
}

// Summary handles GET /api/kuma/summary.
func (h *KumaHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.settings.GetKumaConfig(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to load kuma config")
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	if h.cache != nil {
		if raw, found, err := h.cache.Get(ctx, kumaCacheKey); err != nil {
			h.log.WithError(err).Warn("kuma cache read failed")
		} else if found {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(raw))
			return
		}
	}

	summary := h.client.FetchSummary(ctx, cfg)

	if h.cache != nil && summary.OK {
		if raw, err := json.Marshal(summary); err == nil {
			if err := h.cache.Set(ctx, kumaCacheKey, string(raw), kumaCacheTTL); err != nil {
				h.log.WithError(err).Warn("kuma cache write failed")
			}
		}
	}

	writeJSON(w, http.StatusOK, summary)
}
