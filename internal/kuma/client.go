// Package kuma reads monitor status from an Uptime-Kuma instance, either
// through a public status page or by scraping its Prometheus metrics endpoint.
package kuma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sjdodge123/uptime-atlas/internal/models"
)

// Fail-closed reason codes surfaced to API clients
const (
	ReasonDisabled       = "disabled"
	ReasonMissingBaseURL = "missing_base_url"
	ReasonUnreachable    = "unreachable"
	ReasonInvalidJSON    = "invalid_json"
)

// Monitor summary sources
const (
	SourceStatusPage = "status_page"
	SourceMetrics    = "metrics"
)

const defaultTimeout = 6 * time.Second

// Monitor is one monitored target. Status follows Kuma's convention
// (1 up, 0 down, 2 pending, 3 maintenance); nil when the status page
// did not report one.
type Monitor struct {
	Name   string  `json:"name"`
	Status *int    `json:"status"`
	Type   *string `json:"type,omitempty"`
}

// Summary is the aggregated monitor snapshot or a reason-coded failure.
type Summary struct {
	OK         bool      `json:"ok"`
	Reason     string    `json:"reason,omitempty"`
	RetryAfter string    `json:"retry_after,omitempty"`
	Source     string    `json:"source,omitempty"`
	Monitors   []Monitor `json:"monitors,omitempty"`
}

// Client fetches monitor status snapshots
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

// FetchSummary reads the configured status page when a slug is set, falling
// back to the metrics endpoint otherwise. A 429 response carries the
// Retry-After header through so callers can back off.
func (c *Client) FetchSummary(ctx context.Context, cfg models.KumaConfig) Summary {
	if !cfg.Enabled {
		return Summary{Reason: ReasonDisabled}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return Summary{Reason: ReasonMissingBaseURL}
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if slug := strings.TrimSpace(cfg.StatusPageSlug); slug != "" {
		return c.fetchStatusPage(ctx, cfg, baseURL, slug)
	}
	return c.fetchMetrics(ctx, cfg, baseURL)
}

func (c *Client) fetchStatusPage(ctx context.Context, cfg models.KumaConfig, baseURL, slug string) Summary {
	body, failure := c.get(ctx, cfg, baseURL+"/api/status-page/"+slug)
	if failure != nil {
		return *failure
	}

	var page statusPageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return Summary{Reason: ReasonInvalidJSON}
	}

	statuses := page.statusByMonitorID()
	monitors := []Monitor{}
	for _, group := range page.PublicGroupList {
		for _, m := range group.MonitorList {
			id := m.ID.String()
			name := m.Name
			if name == "" {
				name = "Monitor " + id
			}
			monitors = append(monitors, Monitor{
				Name:   name,
				Status: statuses[id],
				Type:   m.Type,
			})
		}
	}
	return Summary{OK: true, Source: SourceStatusPage, Monitors: monitors}
}

func (c *Client) fetchMetrics(ctx context.Context, cfg models.KumaConfig, baseURL string) Summary {
	path := strings.TrimSpace(cfg.MetricsPath)
	if path == "" {
		path = "/metrics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	body, failure := c.get(ctx, cfg, baseURL+path)
	if failure != nil {
		return *failure
	}
	return Summary{OK: true, Source: SourceMetrics, Monitors: ParseMonitorMetrics(string(body))}
}

func (c *Client) get(ctx context.Context, cfg models.KumaConfig, url string) ([]byte, *Summary) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Summary{Reason: ReasonUnreachable}
	}
	if auth := strings.TrimSpace(cfg.AuthHeader); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("kuma request failed")
		return nil, &Summary{Reason: ReasonUnreachable}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		failure := Summary{Reason: fmt.Sprintf("http_%d", resp.StatusCode)}
		if resp.StatusCode == http.StatusTooManyRequests {
			failure.RetryAfter = resp.Header.Get("Retry-After")
		}
		return nil, &failure
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Summary{Reason: ReasonUnreachable}
	}
	return body, nil
}

type statusPageResponse struct {
	StatusList      json.RawMessage `json:"statusList"`
	PublicGroupList []struct {
		MonitorList []struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
			Type *string     `json:"type"`
		} `json:"monitorList"`
	} `json:"publicGroupList"`
}

// statusByMonitorID flattens statusList, which Kuma emits either as an
// id-keyed object or as a plain array.
func (p *statusPageResponse) statusByMonitorID() map[string]*int {
	out := map[string]*int{}
	if len(p.StatusList) == 0 {
		return out
	}
	var byID map[string]*int
	if err := json.Unmarshal(p.StatusList, &byID); err == nil {
		return byID
	}
	var asList []*int
	if err := json.Unmarshal(p.StatusList, &asList); err == nil {
		for idx, status := range asList {
			out[strconv.Itoa(idx)] = status
		}
	}
	return out
}

// ParseMonitorMetrics extracts monitor_status series from Prometheus text
// exposition. Label values may contain commas, so splitting tracks quoting.
func ParseMonitorMetrics(payload string) []Monitor {
	monitors := []Monitor{}
	for _, line := range strings.Split(payload, "\n") {
		if !strings.HasPrefix(line, "monitor_status{") {
			continue
		}
		labelBlock, value, found := strings.Cut(line[len("monitor_status{"):], "}")
		if !found || strings.Contains(value, "}") {
			continue
		}

		labels := parseLabels(labelBlock)
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		raw, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		status := int(raw)

		name := labels["monitor_name"]
		if name == "" {
			name = labels["monitor"]
		}
		if name == "" {
			name = "Unknown"
		}
		monitor := Monitor{Name: name, Status: &status}
		if t, ok := labels["monitor_type"]; ok {
			monitor.Type = &t
		}
		monitors = append(monitors, monitor)
	}
	return monitors
}

func parseLabels(block string) map[string]string {
	pairs := []string{}
	var current strings.Builder
	inQuotes := false
	for _, ch := range block {
		if ch == '"' {
			inQuotes = !inQuotes
		}
		if ch == ',' && !inQuotes {
			pairs = append(pairs, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}
	if current.Len() > 0 {
		pairs = append(pairs, current.String())
	}

	labels := map[string]string{}
	for _, pair := range pairs {
		key, rawVal, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		labels[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(rawVal), `"`)
	}
	return labels
}
