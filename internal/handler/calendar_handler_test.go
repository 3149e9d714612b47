package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjdodge123/uptime-atlas/internal/cron"
	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/pelican"
)

func TestGetEventsWithoutConfiguredPanel(t *testing.T) {
	env := newTestEnv()

	// The events endpoint is public; with no panel configured it reports a
	// stale, empty calendar instead of failing.
	recorder := env.do(http.MethodGet, "/api/calendar/events", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	payload := decodeBody(t, recorder)
	assert.Equal(t, false, payload["ok"])
	assert.Equal(t, true, payload["stale"])
	assert.Equal(t, pelican.ReasonDisabled, payload["reason"])
}

func TestGetEventsServesStaleOnFetchFailure(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "alice", models.RoleUser)
	env.enablePelican(t)
	env.schedules.result = pelican.FetchResult{OK: false, Reason: pelican.ReasonUnreachable}

	// A stored event inside the window must survive the failed sync.
	ctx := context.Background()
	gameID, err := env.calendar.GetOrCreateGame(ctx, "Rust")
	require.NoError(t, err)
	_, err = env.calendar.InsertEvent(ctx, &models.CalendarEvent{
		ScheduleID: "7",
		GameID:     gameID,
		EventName:  "Wipe",
		StartUTC:   time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
	})
	require.NoError(t, err)

	recorder := env.do(http.MethodGet, "/api/calendar/events", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	payload := decodeBody(t, recorder)
	assert.Equal(t, false, payload["ok"])
	assert.Equal(t, true, payload["stale"])
	assert.Equal(t, pelican.ReasonUnreachable, payload["reason"])
	events, ok := payload["events"].([]interface{})
	require.True(t, ok)
	assert.Len(t, events, 1)
}

func TestGetEventsSyncsFromPanel(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "alice", models.RoleUser)
	env.enablePelican(t)
	env.schedules.result = pelican.FetchResult{
		OK: true,
		Schedules: []pelican.Schedule{
			{ID: "7", Name: "Rust Wipe Start", Cron: cron.Spec{Minute: "0", Hour: "18", DayOfWeek: "fri"}},
		},
	}

	recorder := env.do(http.MethodGet, "/api/calendar/events", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	payload := decodeBody(t, recorder)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, false, payload["stale"])
	events, ok := payload["events"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, events, "weekly schedule should produce events in a three month window")

	sources, ok := payload["sources"].([]interface{})
	require.True(t, ok)
	require.Len(t, sources, 1)
	source := sources[0].(map[string]interface{})
	assert.Equal(t, "Rust", source["name"])
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "admin", models.RoleAdmin)

	recorder := env.do(http.MethodPost, "/api/calendar/events", token, map[string]string{
		"game": "Rust",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	payload := decodeBody(t, recorder)
	fields, ok := payload["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "start")
}

func TestCreateManualEvent(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "admin", models.RoleAdmin)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	recorder := env.do(http.MethodPost, "/api/calendar/events", token, map[string]string{
		"game":        "Valheim",
		"name":        "Server Restart",
		"start":       start.Format(time.RFC3339),
		"description": "planned restart",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	payload := decodeBody(t, recorder)
	event, ok := payload["event"].(map[string]interface{})
	require.True(t, ok)
	scheduleID, _ := event["schedule_id"].(string)
	assert.True(t, len(scheduleID) > len(models.LocalSchedulePrefix))
	assert.Equal(t, models.LocalSchedulePrefix, scheduleID[:len(models.LocalSchedulePrefix)])
	assert.Equal(t, "admin", event["created_by"])
}

func TestCreateEventRejectsNonAdmin(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "bob", models.RoleUser)

	recorder := env.do(http.MethodPost, "/api/calendar/events", token, map[string]string{
		"game":  "Rust",
		"name":  "Wipe",
		"start": time.Now().UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestDeleteEventAuthorization(t *testing.T) {
	env := newTestEnv()
	ownerToken := env.seedUser(t, "owner", models.RoleUser)
	otherToken := env.seedUser(t, "other", models.RoleUser)
	adminToken := env.seedUser(t, "admin", models.RoleAdmin)

	ctx := context.Background()
	gameID, err := env.calendar.GetOrCreateGame(ctx, "Rust")
	require.NoError(t, err)
	createdBy := "owner"
	seed := func(t *testing.T) uint64 {
		id, err := env.calendar.InsertEvent(ctx, &models.CalendarEvent{
			ScheduleID: "local_abc",
			GameID:     gameID,
			EventName:  "Manual",
			StartUTC:   time.Now().UTC(),
			CreatedBy:  &createdBy,
		})
		require.NoError(t, err)
		return id
	}

	id := seed(t)
	recorder := env.do(http.MethodDelete, fmt.Sprintf("/api/calendar/events/%d", id), otherToken, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = env.do(http.MethodDelete, fmt.Sprintf("/api/calendar/events/%d", id), ownerToken, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	id = seed(t)
	recorder = env.do(http.MethodDelete, fmt.Sprintf("/api/calendar/events/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.do(http.MethodDelete, fmt.Sprintf("/api/calendar/events/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code, "soft-deleted event should not delete twice")
}

func TestDeleteSource(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "admin", models.RoleAdmin)

	recorder := env.do(http.MethodDelete, "/api/calendar/sources/99", token, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	ctx := context.Background()
	gameID, err := env.calendar.GetOrCreateGame(ctx, "Rust")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.calendar.InsertEvent(ctx, &models.CalendarEvent{
			ScheduleID: fmt.Sprintf("s%d", i),
			GameID:     gameID,
			EventName:  "Wipe",
			StartUTC:   time.Now().UTC().Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	recorder = env.do(http.MethodDelete, fmt.Sprintf("/api/calendar/sources/%d", gameID), token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, float64(3), payload["deleted"])
}

func TestResyncSourceUnknownGame(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "admin", models.RoleAdmin)
	env.enablePelican(t)

	recorder := env.do(http.MethodPost, "/api/calendar/sources/42/resync", token, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestForcedResync(t *testing.T) {
	env := newTestEnv()
	userToken := env.seedUser(t, "bob", models.RoleUser)
	adminToken := env.seedUser(t, "admin", models.RoleAdmin)
	env.enablePelican(t)
	env.schedules.result = pelican.FetchResult{
		OK: true,
		Schedules: []pelican.Schedule{
			{ID: "7", Name: "Rust Wipe Start", Cron: cron.Spec{Minute: "0", Hour: "18", DayOfWeek: "fri"}},
		},
	}

	recorder := env.do(http.MethodPost, "/api/pelican/resync", userToken, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = env.do(http.MethodPost, "/api/pelican/resync", adminToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, true, payload["ok"])
	assert.Greater(t, payload["events"], float64(0))
}

func TestSchedulesPassthrough(t *testing.T) {
	env := newTestEnv()
	token := env.seedUser(t, "admin", models.RoleAdmin)
	env.enablePelican(t)
	env.schedules.result = pelican.FetchResult{
		OK: true,
		Schedules: []pelican.Schedule{
			{ID: "7", Name: "Rust Wipe Start", CronExpression: "0 18 * * fri"},
		},
	}

	recorder := env.do(http.MethodGet, "/api/pelican/schedules", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	payload := decodeBody(t, recorder)
	assert.Equal(t, true, payload["ok"])
	schedules, ok := payload["schedules"].([]interface{})
	require.True(t, ok)
	require.Len(t, schedules, 1)
}
