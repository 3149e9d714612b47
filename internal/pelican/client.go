// Package pelican fetches schedules from a Pelican/Pterodactyl game panel and
// normalizes them for the calendar sync pipeline.
package pelican

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sjdodge123/uptime-atlas/internal/cron"
	"github.com/sjdodge123/uptime-atlas/internal/models"
)

// Fail-closed reason codes surfaced to API clients
const (
	ReasonDisabled        = "disabled"
	ReasonMissingBaseURL  = "missing_base_url"
	ReasonMissingAPIKey   = "missing_api_key"
	ReasonMissingServerID = "missing_server_id"
	ReasonUnreachable     = "unreachable"
	ReasonInvalidJSON     = "invalid_json"
)

const defaultTimeout = 6 * time.Second

// Schedule is one normalized panel schedule
type Schedule struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Cron           cron.Spec `json:"cron"`
	CronExpression string    `json:"cron_expression"`
	IsActive       *bool     `json:"is_active"`
	OnlyWhenOnline *bool     `json:"only_when_online"`
	UpdatedAt      string    `json:"updated_at"`
}

// FetchResult reports either a schedule list or a reason code, never both.
type FetchResult struct {
	OK        bool       `json:"ok"`
	Reason    string     `json:"reason,omitempty"`
	Schedules []Schedule `json:"schedules"`
}

// Client talks to the panel's client API
type Client struct {
	httpClient *http.Client
	log        *logrus.Logger
}

func NewClient(log *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		log:        log,
	}
}

// FetchSchedules pulls the schedule list for the configured server. Any
// configuration gap, transport failure, or malformed body yields a reason
// code with an empty list; the caller must not touch storage on !OK.
func (c *Client) FetchSchedules(ctx context.Context, cfg models.PelicanConfig) FetchResult {
	if !cfg.Enabled {
		return FetchResult{Reason: ReasonDisabled, Schedules: []Schedule{}}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return FetchResult{Reason: ReasonMissingBaseURL, Schedules: []Schedule{}}
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return FetchResult{Reason: ReasonMissingAPIKey, Schedules: []Schedule{}}
	}
	serverID := strings.TrimSpace(cfg.ServerID)
	if serverID == "" {
		return FetchResult{Reason: ReasonMissingServerID, Schedules: []Schedule{}}
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/client/servers/%s/schedules", baseURL, serverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{Reason: ReasonUnreachable, Schedules: []Schedule{}}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("pelican schedules request failed")
		return FetchResult{Reason: ReasonUnreachable, Schedules: []Schedule{}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return FetchResult{Reason: fmt.Sprintf("http_%d", resp.StatusCode), Schedules: []Schedule{}}
	}

	var payload scheduleListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FetchResult{Reason: ReasonInvalidJSON, Schedules: []Schedule{}}
	}

	schedules := make([]Schedule, 0, len(payload.Data))
	for _, entry := range payload.Data {
		schedules = append(schedules, normalizeEntry(entry))
	}
	return FetchResult{OK: true, Schedules: schedules}
}

type scheduleListResponse struct {
	Data []scheduleEntry `json:"data"`
}

type scheduleEntry struct {
	ID    flexString    `json:"id"`
	Attrs scheduleAttrs `json:"attributes"`
}

// scheduleAttrs carries the cron fields both nested and flat; some panel
// versions return a "cron" object, older ones inline the fields.
type scheduleAttrs struct {
	ID   flexString      `json:"id"`
	UUID string          `json:"uuid"`
	Name string          `json:"name"`
	Cron json.RawMessage `json:"cron"`
	cronFields
	IsActive       *bool  `json:"is_active"`
	OnlyWhenOnline *bool  `json:"only_when_online"`
	UpdatedAt      string `json:"updated_at"`
}

type cronFields struct {
	Minute     flexString `json:"minute"`
	Hour       flexString `json:"hour"`
	DayOfMonth flexString `json:"day_of_month"`
	Month      flexString `json:"month"`
	DayOfWeek  flexString `json:"day_of_week"`
}

func normalizeEntry(entry scheduleEntry) Schedule {
	attrs := entry.Attrs

	fields := attrs.cronFields
	if len(attrs.Cron) > 0 {
		var nested cronFields
		if err := json.Unmarshal(attrs.Cron, &nested); err == nil {
			fields = nested
		}
	}
	spec := cron.Spec{
		Minute:     cronValue(fields.Minute),
		Hour:       cronValue(fields.Hour),
		DayOfMonth: cronValue(fields.DayOfMonth),
		Month:      cronValue(fields.Month),
		DayOfWeek:  cronValue(fields.DayOfWeek),
	}

	id := string(attrs.ID)
	if id == "" {
		id = attrs.UUID
	}
	if id == "" {
		id = string(entry.ID)
	}
	name := attrs.Name
	if name == "" {
		name = "Schedule"
	}

	return Schedule{
		ID:             id,
		Name:           name,
		Cron:           spec,
		CronExpression: spec.Expression(),
		IsActive:       attrs.IsActive,
		OnlyWhenOnline: attrs.OnlyWhenOnline,
		UpdatedAt:      attrs.UpdatedAt,
	}
}

// cronValue maps an absent field to the wildcard.
func cronValue(v flexString) string {
	if v == "" {
		return "*"
	}
	return string(v)
}

// flexString tolerates panels that emit cron fields and ids as JSON numbers
// instead of strings.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	*f = flexString(raw)
	return nil
}
