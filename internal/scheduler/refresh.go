// Package scheduler runs the background jobs: the periodic calendar refresh
// and expired session cleanup.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

const (
	refreshTimeout     = time.Minute
	sessionCleanupSpec = "@hourly"
)

// Refresher owns the cron runner for the background jobs
type Refresher struct {
	calendar *service.CalendarService
	settings *service.SettingsService
	auth     *service.AuthService
	log      *logger.Logger
	runner   *cron.Cron
}

func NewRefresher(calendar *service.CalendarService, settings *service.SettingsService, auth *service.AuthService, log *logger.Logger) *Refresher {
	return &Refresher{
		calendar: calendar,
		settings: settings,
		auth:     auth,
		log:      log,
	}
}

// Start schedules the jobs. refreshSpec is a five-field cron expression for
// the calendar refresh; empty disables the refresh but session cleanup still
// runs.
func (r *Refresher) Start(refreshSpec string) error {
	r.runner = cron.New()

	if refreshSpec != "" {
		if _, err := r.runner.AddFunc(refreshSpec, r.refresh); err != nil {
			return err
		}
		r.log.WithField("schedule", refreshSpec).Info("background calendar refresh enabled")
	} else {
		r.log.Info("background calendar refresh disabled")
	}

	if _, err := r.runner.AddFunc(sessionCleanupSpec, r.cleanupSessions); err != nil {
		return err
	}

	r.runner.Start()
	return nil
}

// Stop halts the runner and waits for in-flight jobs.
func (r *Refresher) Stop() {
	if r.runner != nil {
		<-r.runner.Stop().Done()
	}
}

func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	cfg, err := r.settings.GetPelicanConfig(ctx)
	if err != nil {
		r.log.WithError(err).Error("background refresh: failed to load settings")
		return
	}

	result, err := r.calendar.Sync(ctx, cfg, false)
	switch {
	case err != nil:
		r.log.WithError(err).Error("background refresh failed")
	case !result.OK:
		r.log.WithField("reason", result.Reason).Debug("background refresh skipped")
	}
}

func (r *Refresher) cleanupSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := r.auth.PurgeExpiredSessions(ctx); err != nil {
		r.log.WithError(err).Warn("session cleanup failed")
	}
}
