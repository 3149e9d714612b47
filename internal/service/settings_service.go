package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/repository"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

var ErrUnknownWidget = errors.New("unknown widget")

// Widget create actions reported to the caller
const (
	WidgetActionCreated = "created"
	WidgetActionEnabled = "enabled"
	WidgetActionExists  = "exists"
)

// AppSettings is the merged view of all configurable integrations.
type AppSettings struct {
	Kuma    models.KumaConfig    `json:"kuma_config"`
	Pelican models.PelicanConfig `json:"pelican_config"`
}

// WidgetView is a widget with its template title and decoded config.
type WidgetView struct {
	WidgetKey string          `json:"widget_key"`
	Title     string          `json:"title"`
	Enabled   bool            `json:"enabled"`
	X         int             `json:"x"`
	Y         int             `json:"y"`
	W         int             `json:"w"`
	H         int             `json:"h"`
	Config    json.RawMessage `json:"config"`
}

type widgetTemplate struct {
	key     string
	title   string
	x, y    int
	w, h    int
	enabled bool
}

// defaultWidgets defines the dashboard tiles and their initial grid layout.
var defaultWidgets = []widgetTemplate{
	{key: "kuma", title: "Uptime Kuma", x: 1, y: 1, w: 7, h: 4, enabled: true},
	{key: "calendar", title: "Events Calendar", x: 8, y: 1, w: 5, h: 4, enabled: true},
}

func defaultSettings() AppSettings {
	return AppSettings{
		Kuma: models.KumaConfig{
			MetricsPath: "/metrics",
			TimeoutSec:  6,
		},
		Pelican: models.PelicanConfig{
			ServerName: "Server",
			TimeoutSec: 6,
		},
	}
}

// SettingsService manages integration settings and dashboard widgets
type SettingsService struct {
	settings repository.SettingsRepositoryInterface
	widgets  repository.WidgetRepositoryInterface
	log      *logger.Logger
}

func NewSettingsService(settings repository.SettingsRepositoryInterface, widgets repository.WidgetRepositoryInterface, log *logger.Logger) *SettingsService {
	return &SettingsService{
		settings: settings,
		widgets:  widgets,
		log:      log,
	}
}

// EnsureDefaults seeds missing widgets and setting keys on startup.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	existing, err := s.widgets.List(ctx)
	if err != nil {
		return err
	}
	known := map[string]bool{}
	for _, widget := range existing {
		known[widget.WidgetKey] = true
	}
	for _, tmpl := range defaultWidgets {
		if known[tmpl.key] {
			continue
		}
		widget := &models.Widget{
			WidgetKey:  tmpl.key,
			Enabled:    tmpl.enabled,
			X:          tmpl.x,
			Y:          tmpl.y,
			W:          tmpl.w,
			H:          tmpl.h,
			ConfigJSON: "{}",
		}
		if err := s.widgets.Upsert(ctx, widget); err != nil {
			return err
		}
	}

	defaults := defaultSettings()
	if err := s.seedSetting(ctx, models.SettingKumaConfig, defaults.Kuma); err != nil {
		return err
	}
	return s.seedSetting(ctx, models.SettingPelicanConfig, defaults.Pelican)
}

func (s *SettingsService) seedSetting(ctx context.Context, key string, value interface{}) error {
	_, found, err := s.settings.Get(ctx, key)
	if err != nil || found {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal default setting: %w", err)
	}
	return s.settings.Set(ctx, key, string(raw))
}

// GetSettings returns stored settings overlaid on defaults, so missing keys
// and missing fields both fall back.
func (s *SettingsService) GetSettings(ctx context.Context) (*AppSettings, error) {
	merged := defaultSettings()
	if raw, found, err := s.settings.Get(ctx, models.SettingKumaConfig); err != nil {
		return nil, err
	} else if found {
		if err := json.Unmarshal([]byte(raw), &merged.Kuma); err != nil {
			s.log.WithError(err).Warn("ignoring malformed kuma_config setting")
		}
	}
	if raw, found, err := s.settings.Get(ctx, models.SettingPelicanConfig); err != nil {
		return nil, err
	} else if found {
		if err := json.Unmarshal([]byte(raw), &merged.Pelican); err != nil {
			s.log.WithError(err).Warn("ignoring malformed pelican_config setting")
		}
	}
	return &merged, nil
}

// GetPelicanConfig loads the panel sync configuration.
func (s *SettingsService) GetPelicanConfig(ctx context.Context) (models.PelicanConfig, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return models.PelicanConfig{}, err
	}
	return settings.Pelican, nil
}

// GetKumaConfig loads the monitor summary configuration.
func (s *SettingsService) GetKumaConfig(ctx context.Context) (models.KumaConfig, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return models.KumaConfig{}, err
	}
	return settings.Kuma, nil
}

// UpdateSettings stores the provided sections. Each section is merged onto
// its defaults, not onto the previously stored value.
func (s *SettingsService) UpdateSettings(ctx context.Context, payload map[string]json.RawMessage) error {
	defaults := defaultSettings()
	if raw, ok := payload[models.SettingKumaConfig]; ok {
		merged := defaults.Kuma
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("invalid kuma_config: %w", err)
		}
		if err := s.storeSetting(ctx, models.SettingKumaConfig, merged); err != nil {
			return err
		}
	}
	if raw, ok := payload[models.SettingPelicanConfig]; ok {
		merged := defaults.Pelican
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("invalid pelican_config: %w", err)
		}
		if err := s.storeSetting(ctx, models.SettingPelicanConfig, merged); err != nil {
			return err
		}
	}
	return nil
}

func (s *SettingsService) storeSetting(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal setting: %w", err)
	}
	return s.settings.Set(ctx, key, string(raw))
}

// ListWidgets returns widgets in template order, filling absent ones from
// their defaults.
func (s *SettingsService) ListWidgets(ctx context.Context) ([]WidgetView, error) {
	stored, err := s.widgets.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := map[string]*models.Widget{}
	for _, widget := range stored {
		byKey[widget.WidgetKey] = widget
	}

	views := []WidgetView{}
	for _, tmpl := range defaultWidgets {
		view := WidgetView{
			WidgetKey: tmpl.key,
			Title:     tmpl.title,
			Enabled:   tmpl.enabled,
			X:         tmpl.x,
			Y:         tmpl.y,
			W:         tmpl.w,
			H:         tmpl.h,
			Config:    json.RawMessage("{}"),
		}
		if widget, ok := byKey[tmpl.key]; ok {
			view.Enabled = widget.Enabled
			view.X, view.Y, view.W, view.H = widget.X, widget.Y, widget.W, widget.H
			if json.Valid([]byte(widget.ConfigJSON)) && widget.ConfigJSON != "" {
				view.Config = json.RawMessage(widget.ConfigJSON)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateWidget adds a widget from its template, placing it below the
// current layout. Re-creating an existing widget just re-enables it.
func (s *SettingsService) CreateWidget(ctx context.Context, widgetKey string) (string, error) {
	var tmpl *widgetTemplate
	for i := range defaultWidgets {
		if defaultWidgets[i].key == widgetKey {
			tmpl = &defaultWidgets[i]
			break
		}
	}
	if tmpl == nil {
		return "", ErrUnknownWidget
	}

	stored, err := s.widgets.List(ctx)
	if err != nil {
		return "", err
	}
	for _, widget := range stored {
		if widget.WidgetKey != widgetKey {
			continue
		}
		if !widget.Enabled {
			if err := s.widgets.UpdateEnabled(ctx, widgetKey, true); err != nil {
				return "", err
			}
			return WidgetActionEnabled, nil
		}
		return WidgetActionExists, nil
	}

	maxY := 0
	for _, widget := range stored {
		if bottom := widget.Y + widget.H - 1; bottom > maxY {
			maxY = bottom
		}
	}
	widget := &models.Widget{
		WidgetKey:  widgetKey,
		Enabled:    true,
		X:          1,
		Y:          maxY + 1,
		W:          tmpl.w,
		H:          tmpl.h,
		ConfigJSON: "{}",
	}
	if err := s.widgets.Upsert(ctx, widget); err != nil {
		return "", err
	}
	return WidgetActionCreated, nil
}

// UpdateLayout applies grid positions for the given widgets.
func (s *SettingsService) UpdateLayout(ctx context.Context, layouts []models.Widget) error {
	if len(layouts) == 0 {
		return nil
	}
	return s.widgets.UpdateLayouts(ctx, layouts)
}

// SetWidgetEnabled toggles one widget.
func (s *SettingsService) SetWidgetEnabled(ctx context.Context, widgetKey string, enabled bool) error {
	return s.widgets.UpdateEnabled(ctx, widgetKey, enabled)
}
