package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sjdodge123/uptime-atlas/internal/kuma"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/pelican"
	"github.com/sjdodge123/uptime-atlas/internal/service"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
	"github.com/sjdodge123/uptime-atlas/pkg/metrics"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics("handlertest")

func testLogger() *logger.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &logger.Logger{Logger: log}
}

// fakeCalendarRepo is an in-memory calendar store
type fakeCalendarRepo struct {
	nextID uint64
	events map[uint64]*models.CalendarEvent
	games  map[uint64]*models.Game
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{
		nextID: 1,
		events: map[uint64]*models.CalendarEvent{},
		games:  map[uint64]*models.Game{},
	}
}

func (f *fakeCalendarRepo) UpsertEvent(ctx context.Context, event *models.CalendarEvent) error {
	for _, existing := range f.events {
		if existing.ScheduleID == event.ScheduleID && existing.StartUTC.Equal(event.StartUTC) {
			if !existing.IsDeleted {
				existing.GameID = event.GameID
				existing.EventName = event.EventName
				existing.StopUTC = event.StopUTC
			}
			return nil
		}
	}
	_, err := f.InsertEvent(ctx, event)
	return err
}

func (f *fakeCalendarRepo) InsertEvent(ctx context.Context, event *models.CalendarEvent) (uint64, error) {
	copied := *event
	copied.ID = f.nextID
	f.nextID++
	f.events[copied.ID] = &copied
	return copied.ID, nil
}

func (f *fakeCalendarRepo) ListEvents(ctx context.Context, start, end *time.Time, includeDeleted bool) ([]*models.CalendarEvent, error) {
	out := []*models.CalendarEvent{}
	for _, event := range f.events {
		if event.IsDeleted && !includeDeleted {
			continue
		}
		if start != nil && event.StartUTC.Before(*start) {
			continue
		}
		if end != nil && !event.StartUTC.Before(*end) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartUTC.Before(out[j].StartUTC) })
	return out, nil
}

func (f *fakeCalendarRepo) GetEventByID(ctx context.Context, id uint64) (*models.CalendarEvent, error) {
	return f.events[id], nil
}

func (f *fakeCalendarRepo) MarkEventDeleted(ctx context.Context, id uint64) error {
	if event, ok := f.events[id]; ok {
		event.IsDeleted = true
	}
	return nil
}

func (f *fakeCalendarRepo) MarkEventsDeletedByGame(ctx context.Context, gameID uint64) (int64, error) {
	var count int64
	for _, event := range f.events {
		if event.GameID == gameID && !event.IsDeleted {
			event.IsDeleted = true
			count++
		}
	}
	return count, nil
}

func (f *fakeCalendarRepo) DeleteEventsByGame(ctx context.Context, gameID uint64) error {
	for id, event := range f.events {
		if event.GameID == gameID {
			delete(f.events, id)
		}
	}
	return nil
}

func (f *fakeCalendarRepo) DeleteEventsInRange(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
	for id, event := range f.events {
		if event.StartUTC.Before(start) || !event.StartUTC.Before(end) {
			continue
		}
		if excludeLocal && event.IsLocal() {
			continue
		}
		if event.IsDeleted && !includeDeleted {
			continue
		}
		delete(f.events, id)
	}
	return nil
}

func (f *fakeCalendarRepo) GetOrCreateGame(ctx context.Context, name string) (uint64, error) {
	if name == "" {
		name = "General"
	}
	for id, game := range f.games {
		if game.Name == name {
			return id, nil
		}
	}
	id := f.nextID
	f.nextID++
	f.games[id] = &models.Game{ID: id, Name: name}
	return id, nil
}

func (f *fakeCalendarRepo) GetGameByID(ctx context.Context, id uint64) (*models.Game, error) {
	return f.games[id], nil
}

func (f *fakeCalendarRepo) ListGamesWithStats(ctx context.Context) ([]*models.GameStats, error) {
	stats := map[uint64]*models.GameStats{}
	for id, game := range f.games {
		stats[id] = &models.GameStats{ID: id, Name: game.Name}
	}
	for _, event := range f.events {
		stat, ok := stats[event.GameID]
		if !ok {
			continue
		}
		if event.IsDeleted {
			stat.DeletedCount++
		} else {
			stat.ActiveCount++
		}
	}
	out := []*models.GameStats{}
	for _, stat := range stats {
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeSettingsRepo keeps settings in memory
type fakeSettingsRepo struct {
	values map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{values: map[string]string{}}
}

func (f *fakeSettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeSettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	return f.values, nil
}

func (f *fakeSettingsRepo) Set(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

// fakeWidgetRepo keeps widgets in memory
type fakeWidgetRepo struct {
	widgets map[string]*models.Widget
}

func newFakeWidgetRepo() *fakeWidgetRepo {
	return &fakeWidgetRepo{widgets: map[string]*models.Widget{}}
}

func (f *fakeWidgetRepo) List(ctx context.Context) ([]*models.Widget, error) {
	out := []*models.Widget{}
	for _, widget := range f.widgets {
		out = append(out, widget)
	}
	return out, nil
}

func (f *fakeWidgetRepo) Upsert(ctx context.Context, widget *models.Widget) error {
	copied := *widget
	f.widgets[widget.WidgetKey] = &copied
	return nil
}

func (f *fakeWidgetRepo) UpdateLayouts(ctx context.Context, layouts []models.Widget) error {
	for _, item := range layouts {
		if widget, ok := f.widgets[item.WidgetKey]; ok {
			widget.X, widget.Y, widget.W, widget.H = item.X, item.Y, item.W, item.H
		}
	}
	return nil
}

func (f *fakeWidgetRepo) UpdateEnabled(ctx context.Context, widgetKey string, enabled bool) error {
	if widget, ok := f.widgets[widgetKey]; ok {
		widget.Enabled = enabled
	}
	return nil
}

// fakeUserRepo keeps users in memory
type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}}
}

func (f *fakeUserRepo) HasUsers(ctx context.Context) (bool, error) {
	return len(f.users) > 0, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return f.users[username], nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	copied := *user
	copied.ID = uint64(len(f.users) + 1)
	f.users[user.Username] = &copied
	return nil
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, username, role string) error {
	if user, ok := f.users[username]; ok {
		user.Role = role
	}
	return nil
}

func (f *fakeUserRepo) UpdateTimezone(ctx context.Context, username, timezone string) error {
	if user, ok := f.users[username]; ok {
		user.Timezone = timezone
	}
	return nil
}

func (f *fakeUserRepo) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	if user, ok := f.users[username]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeUserRepo) List(ctx context.Context) ([]*models.User, error) {
	out := []*models.User{}
	for _, user := range f.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// fakeSessionRepo keeps sessions in memory keyed by token
type fakeSessionRepo struct {
	sessions map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*models.Session{}}
}

func (f *fakeSessionRepo) Create(ctx context.Context, token, username string, expiresAt time.Time) error {
	f.sessions[token] = &models.Session{TokenHash: token, Username: username, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeSessionRepo) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	return f.sessions[token], nil
}

func (f *fakeSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func (f *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	for token, session := range f.sessions {
		if session.Expired(now) {
			delete(f.sessions, token)
		}
	}
	return nil
}

// fakeCache keeps cached values in memory, ignoring TTLs
type fakeCache struct {
	values map[string]string
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.values[key] = value
	f.sets++
	return nil
}

// fakeScheduleFetcher returns a canned panel response
type fakeScheduleFetcher struct {
	result pelican.FetchResult
	calls  int
}

func (f *fakeScheduleFetcher) FetchSchedules(ctx context.Context, cfg models.PelicanConfig) pelican.FetchResult {
	f.calls++
	return f.result
}

// fakeSummaryFetcher returns a canned Kuma summary
type fakeSummaryFetcher struct {
	summary kuma.Summary
	calls   int
}

func (f *fakeSummaryFetcher) FetchSummary(ctx context.Context, cfg models.KumaConfig) kuma.Summary {
	f.calls++
	return f.summary
}

// testEnv wires real services over the in-memory fakes behind a full router.
type testEnv struct {
	router    http.Handler
	calendar  *fakeCalendarRepo
	settings  *fakeSettingsRepo
	widgets   *fakeWidgetRepo
	users     *fakeUserRepo
	sessions  *fakeSessionRepo
	cache     *fakeCache
	schedules *fakeScheduleFetcher
	summaries *fakeSummaryFetcher
	auth      *service.AuthService
}

// newTestEnv builds the full HTTP stack on in-memory storage.
func newTestEnv() *testEnv {
	env := &testEnv{
		calendar:  newFakeCalendarRepo(),
		settings:  newFakeSettingsRepo(),
		widgets:   newFakeWidgetRepo(),
		users:     newFakeUserRepo(),
		sessions:  newFakeSessionRepo(),
		cache:     newFakeCache(),
		schedules: &fakeScheduleFetcher{result: pelican.FetchResult{Reason: pelican.ReasonDisabled}},
		summaries: &fakeSummaryFetcher{summary: kuma.Summary{Reason: kuma.ReasonDisabled}},
	}

	log := testLogger()
	validate := helpers.NewCustomValidator()
	idGen := helpers.NewIDGenerator()

	calendarService := service.NewCalendarService(env.calendar, env.schedules, log, testMetrics)
	settingsService := service.NewSettingsService(env.settings, env.widgets, log)
	env.auth = service.NewAuthService(env.users, env.sessions, idGen, log)

	env.router = NewRouter(RouterDeps{
		Calendar:      NewCalendarHandler(calendarService, settingsService, env.schedules, idGen, validate, log),
		Kuma:          NewKumaHandler(env.summaries, settingsService, env.cache, log),
		Auth:          NewAuthHandler(env.auth, validate, log),
		Settings:      NewSettingsHandler(settingsService, validate, log),
		Authenticator: env.auth,
		Logger:        nil,
		Metrics:       nil,
	})
	return env
}

// seedUser creates a user with the given role and an open session, returning
// the session token.
func (env *testEnv) seedUser(t *testing.T, username, role string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, env.users.Create(context.Background(), &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Timezone:     "UTC",
	}))
	token := username + "-token"
	require.NoError(t, env.sessions.Create(context.Background(), token, username, time.Now().Add(time.Hour)))
	return token
}

// enablePelican stores a panel config that passes the client's gates.
func (env *testEnv) enablePelican(t *testing.T) {
	t.Helper()
	cfg := models.PelicanConfig{
		Enabled:    true,
		BaseURL:    "http://panel",
		APIKey:     "key",
		ServerID:   "srv1",
		ServerName: "Rust",
		TimeoutSec: 2,
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, env.settings.Set(context.Background(), models.SettingPelicanConfig, string(raw)))
}

// do performs a request against the router with an optional session token.
func (env *testEnv) do(method, target, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload
}
