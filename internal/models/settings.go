package models

import "time"

// Setting keys for the JSON-valued settings table
const (
	SettingKumaConfig    = "kuma_config"
	SettingPelicanConfig = "pelican_config"
)

// Setting is one key/value row; Value holds a JSON document.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// KumaConfig drives the Uptime-Kuma summary client
type KumaConfig struct {
	Enabled        bool   `json:"enabled"`
	BaseURL        string `json:"base_url"`
	StatusPageSlug string `json:"status_page_slug"`
	MetricsPath    string `json:"metrics_path"`
	AuthHeader     string `json:"auth_header"`
	TimeoutSec     int    `json:"timeout_sec"`
}

// PelicanConfig drives the panel schedule client
type PelicanConfig struct {
	Enabled    bool   `json:"enabled"`
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
	TimeoutSec int    `json:"timeout_sec"`
}

// Widget is one dashboard tile and its grid placement
type Widget struct {
	WidgetKey  string    `db:"widget_key" json:"widget_key"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	X          int       `db:"x" json:"x"`
	Y          int       `db:"y" json:"y"`
	W          int       `db:"w" json:"w"`
	H          int       `db:"h" json:"h"`
	ConfigJSON string    `db:"config_json" json:"config_json"`
	UpdatedAt  time.Time `db:"updated_at" json:"-"`
}
