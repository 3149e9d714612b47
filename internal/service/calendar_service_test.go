package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjdodge123/uptime-atlas/internal/cron"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/pelican"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
	"github.com/sjdodge123/uptime-atlas/pkg/metrics"
)

// Prometheus collectors register globally, so the package shares one instance.
var testMetrics = metrics.NewMetrics("test")

func testLogger() *logger.Logger {
	log := logger.NewLogger("test")
	log.SetOutput(io.Discard)
	return log
}

// mockCalendarRepo implements calendar repository methods for testing
type mockCalendarRepo struct {
	upsertEventFunc             func(ctx context.Context, event *models.CalendarEvent) error
	insertEventFunc             func(ctx context.Context, event *models.CalendarEvent) (uint64, error)
	listEventsFunc              func(ctx context.Context, start, end *time.Time, includeDeleted bool) ([]*models.CalendarEvent, error)
	getEventByIDFunc            func(ctx context.Context, id uint64) (*models.CalendarEvent, error)
	markEventDeletedFunc        func(ctx context.Context, id uint64) error
	markEventsDeletedByGameFunc func(ctx context.Context, gameID uint64) (int64, error)
	deleteEventsByGameFunc      func(ctx context.Context, gameID uint64) error
	deleteEventsInRangeFunc     func(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error
	getOrCreateGameFunc         func(ctx context.Context, name string) (uint64, error)
	getGameByIDFunc             func(ctx context.Context, id uint64) (*models.Game, error)
	listGamesWithStatsFunc      func(ctx context.Context) ([]*models.GameStats, error)
}

func (m *mockCalendarRepo) UpsertEvent(ctx context.Context, event *models.CalendarEvent) error {
	if m.upsertEventFunc != nil {
		return m.upsertEventFunc(ctx, event)
	}
	return nil
}

func (m *mockCalendarRepo) InsertEvent(ctx context.Context, event *models.CalendarEvent) (uint64, error) {
	if m.insertEventFunc != nil {
		return m.insertEventFunc(ctx, event)
	}
	return 1, nil
}

func (m *mockCalendarRepo) ListEvents(ctx context.Context, start, end *time.Time, includeDeleted bool) ([]*models.CalendarEvent, error) {
	if m.listEventsFunc != nil {
		return m.listEventsFunc(ctx, start, end, includeDeleted)
	}
	return []*models.CalendarEvent{}, nil
}

func (m *mockCalendarRepo) GetEventByID(ctx context.Context, id uint64) (*models.CalendarEvent, error) {
	if m.getEventByIDFunc != nil {
		return m.getEventByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockCalendarRepo) MarkEventDeleted(ctx context.Context, id uint64) error {
	if m.markEventDeletedFunc != nil {
		return m.markEventDeletedFunc(ctx, id)
	}
	return nil
}

func (m *mockCalendarRepo) MarkEventsDeletedByGame(ctx context.Context, gameID uint64) (int64, error) {
	if m.markEventsDeletedByGameFunc != nil {
		return m.markEventsDeletedByGameFunc(ctx, gameID)
	}
	return 0, nil
}

func (m *mockCalendarRepo) DeleteEventsByGame(ctx context.Context, gameID uint64) error {
	if m.deleteEventsByGameFunc != nil {
		return m.deleteEventsByGameFunc(ctx, gameID)
	}
	return nil
}

func (m *mockCalendarRepo) DeleteEventsInRange(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
	if m.deleteEventsInRangeFunc != nil {
		return m.deleteEventsInRangeFunc(ctx, start, end, excludeLocal, includeDeleted)
	}
	return nil
}

func (m *mockCalendarRepo) GetOrCreateGame(ctx context.Context, name string) (uint64, error) {
	if m.getOrCreateGameFunc != nil {
		return m.getOrCreateGameFunc(ctx, name)
	}
	return 1, nil
}

func (m *mockCalendarRepo) GetGameByID(ctx context.Context, id uint64) (*models.Game, error) {
	if m.getGameByIDFunc != nil {
		return m.getGameByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockCalendarRepo) ListGamesWithStats(ctx context.Context) ([]*models.GameStats, error) {
	if m.listGamesWithStatsFunc != nil {
		return m.listGamesWithStatsFunc(ctx)
	}
	return []*models.GameStats{}, nil
}

// mockFetcher returns a canned fetch result
type mockFetcher struct {
	result pelican.FetchResult
}

func (m *mockFetcher) FetchSchedules(ctx context.Context, cfg models.PelicanConfig) pelican.FetchResult {
	return m.result
}

func fixedNow() time.Time {
	return time.Date(2025, time.September, 14, 10, 30, 0, 0, time.UTC)
}

func newTestService(repo *mockCalendarRepo, fetcher ScheduleFetcher) *CalendarService {
	svc := NewCalendarService(repo, fetcher, testLogger(), testMetrics)
	svc.now = fixedNow
	return svc
}

func enabledPelicanConfig() models.PelicanConfig {
	return models.PelicanConfig{Enabled: true, BaseURL: "http://panel", APIKey: "k", ServerID: "s", ServerName: "Rust"}
}

func wipeSchedules() []pelican.Schedule {
	return []pelican.Schedule{
		{ID: "10", Name: "Rust: Wipe Start", Cron: cron.Spec{Minute: "0", Hour: "18", DayOfMonth: "*", Month: "*", DayOfWeek: "fri"}},
		{ID: "11", Name: "Rust: Wipe Stop", Cron: cron.Spec{Minute: "0", Hour: "20", DayOfMonth: "*", Month: "*", DayOfWeek: "fri"}},
	}
}

func TestCalendarServiceWindow(t *testing.T) {
	svc := newTestService(&mockCalendarRepo{}, &mockFetcher{})
	start, end := svc.Window()
	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestAddMonthsClampsDay(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), addMonths(jan31, 1))

	nov := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), addMonths(nov, 3))
}

func TestSyncFailClosed(t *testing.T) {
	touched := false
	repo := &mockCalendarRepo{
		deleteEventsInRangeFunc: func(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
			touched = true
			return nil
		},
		upsertEventFunc: func(ctx context.Context, event *models.CalendarEvent) error {
			touched = true
			return nil
		},
	}
	fetcher := &mockFetcher{result: pelican.FetchResult{Reason: pelican.ReasonUnreachable}}
	svc := newTestService(repo, fetcher)

	result, err := svc.Sync(context.Background(), enabledPelicanConfig(), false)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, pelican.ReasonUnreachable, result.Reason)
	assert.False(t, touched, "failed fetch must not touch storage")
}

func TestSyncReplacesWindow(t *testing.T) {
	var deletedRange []time.Time
	var deletedIncludeDeleted, deletedExcludeLocal bool
	var upserts []*models.CalendarEvent

	repo := &mockCalendarRepo{
		deleteEventsInRangeFunc: func(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
			deletedRange = []time.Time{start, end}
			deletedExcludeLocal = excludeLocal
			deletedIncludeDeleted = includeDeleted
			return nil
		},
		getOrCreateGameFunc: func(ctx context.Context, name string) (uint64, error) {
			assert.Equal(t, "Rust", name)
			return 7, nil
		},
		upsertEventFunc: func(ctx context.Context, event *models.CalendarEvent) error {
			upserts = append(upserts, event)
			return nil
		},
	}
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true, Schedules: wipeSchedules()}}
	svc := newTestService(repo, fetcher)

	result, err := svc.Sync(context.Background(), enabledPelicanConfig(), false)
	require.NoError(t, err)
	assert.True(t, result.OK)

	// Sep + Oct + Nov 2025 hold 13 Fridays; each start pairs with the
	// same evening's stop.
	assert.Equal(t, 13, result.Events)
	require.Len(t, upserts, 13)

	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), deletedRange[0])
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), deletedRange[1])
	assert.True(t, deletedExcludeLocal)
	assert.False(t, deletedIncludeDeleted)

	first := upserts[0]
	assert.Equal(t, "10", first.ScheduleID)
	assert.Equal(t, uint64(7), first.GameID)
	assert.Equal(t, "Wipe", first.EventName)
	assert.Equal(t, time.Date(2025, time.September, 5, 18, 0, 0, 0, time.UTC), first.StartUTC)
	require.NotNil(t, first.StopUTC)
	assert.Equal(t, time.Date(2025, time.September, 5, 20, 0, 0, 0, time.UTC), *first.StopUTC)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, "Pelican", *first.CreatedBy)
}

func TestSyncForceClearsSoftDeleted(t *testing.T) {
	var includeDeleted bool
	repo := &mockCalendarRepo{
		deleteEventsInRangeFunc: func(ctx context.Context, start, end time.Time, excludeLocal, incl bool) error {
			includeDeleted = incl
			return nil
		},
	}
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true, Schedules: []pelican.Schedule{}}}
	svc := newTestService(repo, fetcher)

	result, err := svc.Sync(context.Background(), enabledPelicanConfig(), true)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, includeDeleted)
}

func TestSyncIsIdempotent(t *testing.T) {
	// Stateful fake keyed the way the unique index is.
	store := map[string]*models.CalendarEvent{}
	repo := &mockCalendarRepo{
		deleteEventsInRangeFunc: func(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
			for key, event := range store {
				if !event.StartUTC.Before(start) && event.StartUTC.Before(end) {
					delete(store, key)
				}
			}
			return nil
		},
		upsertEventFunc: func(ctx context.Context, event *models.CalendarEvent) error {
			store[event.ScheduleID+"|"+event.StartUTC.Format(time.RFC3339)] = event
			return nil
		},
	}
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true, Schedules: wipeSchedules()}}
	svc := newTestService(repo, fetcher)

	_, err := svc.Sync(context.Background(), enabledPelicanConfig(), false)
	require.NoError(t, err)
	firstCount := len(store)

	_, err = svc.Sync(context.Background(), enabledPelicanConfig(), false)
	require.NoError(t, err)
	assert.Equal(t, firstCount, len(store), "second sync must not grow the store")
}

func TestSyncStorageErrorSurfaces(t *testing.T) {
	repo := &mockCalendarRepo{
		deleteEventsInRangeFunc: func(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
			return errors.New("connection lost")
		},
	}
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true, Schedules: wipeSchedules()}}
	svc := newTestService(repo, fetcher)

	_, err := svc.Sync(context.Background(), enabledPelicanConfig(), false)
	assert.Error(t, err)
}

func TestResyncGameFiltersAndHardDeletes(t *testing.T) {
	var hardDeletedGame uint64
	var upserts []*models.CalendarEvent
	repo := &mockCalendarRepo{
		deleteEventsByGameFunc: func(ctx context.Context, gameID uint64) error {
			hardDeletedGame = gameID
			return nil
		},
		upsertEventFunc: func(ctx context.Context, event *models.CalendarEvent) error {
			upserts = append(upserts, event)
			return nil
		},
	}
	schedules := append(wipeSchedules(),
		pelican.Schedule{ID: "12", Name: "Valheim: Raid", Cron: cron.Spec{Minute: "0", Hour: "12", DayOfMonth: "1", Month: "*", DayOfWeek: "*"}},
	)
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true, Schedules: schedules}}
	svc := newTestService(repo, fetcher)

	game := &models.Game{ID: 7, Name: "rust"}
	result, err := svc.ResyncGame(context.Background(), enabledPelicanConfig(), game)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, uint64(7), hardDeletedGame)
	assert.Equal(t, 13, result.Events)
	for _, event := range upserts {
		assert.Equal(t, uint64(7), event.GameID)
		assert.Equal(t, "Wipe", event.EventName)
	}
}

func TestResyncGameMissingName(t *testing.T) {
	fetcher := &mockFetcher{result: pelican.FetchResult{OK: true}}
	svc := newTestService(&mockCalendarRepo{}, fetcher)

	result, err := svc.ResyncGame(context.Background(), enabledPelicanConfig(), &models.Game{ID: 7, Name: "  "})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, ReasonMissingGame, result.Reason)
}

func TestCreateManualEventValidation(t *testing.T) {
	svc := newTestService(&mockCalendarRepo{}, &mockFetcher{})
	start := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.CreateManualEvent(context.Background(), "local_x", "", "Maintenance", start, nil, "", "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateManualEvent(context.Background(), "local_x", "Rust", "", start, nil, "", "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)

	badStop := start.Add(-time.Hour)
	_, err = svc.CreateManualEvent(context.Background(), "local_x", "Rust", "Maintenance", start, &badStop, "", "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateManualEvent(t *testing.T) {
	repo := &mockCalendarRepo{
		getOrCreateGameFunc: func(ctx context.Context, name string) (uint64, error) {
			return 3, nil
		},
		insertEventFunc: func(ctx context.Context, event *models.CalendarEvent) (uint64, error) {
			return 21, nil
		},
	}
	svc := newTestService(repo, &mockFetcher{})

	start := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
	stop := start.Add(2 * time.Hour)
	event, err := svc.CreateManualEvent(context.Background(), "local_abc", "Rust", "Maintenance", start, &stop, "patch day", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(21), event.ID)
	assert.Equal(t, uint64(3), event.GameID)
	require.NotNil(t, event.CreatedBy)
	assert.Equal(t, "alice", *event.CreatedBy)
	require.NotNil(t, event.Description)
	assert.Equal(t, "patch day", *event.Description)
}

func TestDeleteEventAuthorization(t *testing.T) {
	creator := "alice"
	stored := &models.CalendarEvent{ID: 5, CreatedBy: &creator}

	repo := &mockCalendarRepo{
		getEventByIDFunc: func(ctx context.Context, id uint64) (*models.CalendarEvent, error) {
			return stored, nil
		},
	}
	svc := newTestService(repo, &mockFetcher{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.DeleteEvent(ctx, 5, "bob", false), ErrNotAuthorized)
	assert.NoError(t, svc.DeleteEvent(ctx, 5, "alice", false))
	assert.NoError(t, svc.DeleteEvent(ctx, 5, "bob", true))

	stored.IsDeleted = true
	assert.ErrorIs(t, svc.DeleteEvent(ctx, 5, "alice", false), ErrEventNotFound)
}

func TestDeleteSourceUnknownGame(t *testing.T) {
	svc := newTestService(&mockCalendarRepo{}, &mockFetcher{})
	_, err := svc.DeleteSource(context.Background(), 99)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestListWindowEventsFiltersInactiveSources(t *testing.T) {
	repo := &mockCalendarRepo{
		listGamesWithStatsFunc: func(ctx context.Context) ([]*models.GameStats, error) {
			return []*models.GameStats{
				{ID: 1, Name: "Ark", ActiveCount: 0},
				{ID: 2, Name: "Rust", ActiveCount: 4},
			}, nil
		},
	}
	svc := newTestService(repo, &mockFetcher{})

	_, sources, err := svc.ListWindowEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Rust", sources[0].Name)
}
