package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sjdodge123/uptime-atlas/internal/config"
	"github.com/sjdodge123/uptime-atlas/internal/handler"
	"github.com/sjdodge123/uptime-atlas/internal/kuma"
	"github.com/sjdodge123/uptime-atlas/internal/pelican"
	"github.com/sjdodge123/uptime-atlas/internal/repository"
	"github.com/sjdodge123/uptime-atlas/internal/scheduler"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/db"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
	"github.com/sjdodge123/uptime-atlas/pkg/metrics"
)

func main() {
	log := logger.NewLogger("uptime-atlas")

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug(".env file not found")
	}

	cfg := config.LoadConfig()
	m := metrics.NewMetrics("server")

	dbPort, err := strconv.Atoi(cfg.Database.Port)
	if err != nil {
		log.WithError(err).Fatal("invalid DB_PORT")
	}
	conn, err := db.NewConnection(db.Config{
		Host:     cfg.Database.Host,
		Port:     dbPort,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer conn.Close()
	log.Info("connected to database")

	if err := db.EnsureSchema(conn.DB); err != nil {
		log.WithError(err).Fatal("failed to ensure schema")
	}

	var cache repository.CacheRepositoryInterface
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, running without cache")
		} else {
			cache = repository.NewCacheRepository(client)
			log.Info("redis cache enabled")
		}
	}

	calendarRepo := repository.NewCalendarRepository(conn.DB)
	userRepo := repository.NewUserRepository(conn.DB)
	sessionRepo := repository.NewSessionRepository(conn.DB)
	settingsRepo := repository.NewSettingsRepository(conn.DB)
	widgetRepo := repository.NewWidgetRepository(conn.DB)

	idGen := helpers.NewIDGenerator()
	validate := helpers.NewCustomValidator()

	pelicanClient := pelican.NewClient(log.Logger)
	kumaClient := kuma.NewClient(log.Logger)

	calendarService := service.NewCalendarService(calendarRepo, pelicanClient, log, m)
	settingsService := service.NewSettingsService(settingsRepo, widgetRepo, log)
	authService := service.NewAuthService(userRepo, sessionRepo, idGen, log)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := settingsService.EnsureDefaults(startupCtx); err != nil {
		log.WithError(err).Fatal("failed to seed default settings")
	}
	if err := authService.Bootstrap(startupCtx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.WithError(err).Fatal("failed to bootstrap admin account")
	}
	cancelStartup()

	router := handler.NewRouter(handler.RouterDeps{
		Calendar:      handler.NewCalendarHandler(calendarService, settingsService, pelicanClient, idGen, validate, log),
		Kuma:          handler.NewKumaHandler(kumaClient, settingsService, cache, log),
		Auth:          handler.NewAuthHandler(authService, validate, log),
		Settings:      handler.NewSettingsHandler(settingsService, validate, log),
		Authenticator: authService,
		Logger:        log,
		Metrics:       m,
	})

	refresher := scheduler.NewRefresher(calendarService, settingsService, authService, log)
	if err := refresher.Start(cfg.Server.RefreshCron); err != nil {
		log.WithError(err).Fatal("invalid REFRESH_CRON expression")
	}

	// Pool stats feed the db_connection_pool gauge.
	poolTicker := time.NewTicker(30 * time.Second)
	go func() {
		for range poolTicker.C {
			stats := conn.Stats()
			m.RecordDBPoolStats(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount, stats.WaitDuration)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	poolTicker.Stop()
	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
	log.Info("server stopped")
}
