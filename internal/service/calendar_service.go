package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/pelican"
	"github.com/sjdodge123/uptime-atlas/internal/repository"
	"github.com/sjdodge123/uptime-atlas/internal/schedule"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
	"github.com/sjdodge123/uptime-atlas/pkg/metrics"
)

// Events written by sync carry this author so they can be told apart from
// manual entries.
const syncedEventAuthor = "Pelican"

// ReasonMissingGame reports a per-game resync against a game with no name.
const ReasonMissingGame = "missing_game"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrGameNotFound  = errors.New("game not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// ScheduleFetcher abstracts the panel client for testing
type ScheduleFetcher interface {
	FetchSchedules(ctx context.Context, cfg models.PelicanConfig) pelican.FetchResult
}

// SyncResult reports one reconciliation pass.
type SyncResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Events int    `json:"events"`
}

// CalendarService reconciles panel schedules into stored calendar events
type CalendarService struct {
	repo    repository.CalendarRepositoryInterface
	fetcher ScheduleFetcher
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCalendarService(repo repository.CalendarRepositoryInterface, fetcher ScheduleFetcher, log *logger.Logger, m *metrics.Metrics) *CalendarService {
	return &CalendarService{
		repo:    repo,
		fetcher: fetcher,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Window returns the sync horizon: the first instant of the current UTC
// month through three calendar months out.
func (s *CalendarService) Window() (time.Time, time.Time) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, addMonths(start, 3)
}

// addMonths advances by calendar months, clamping the day to the target
// month's length (Jan 31 + 1 month = Feb 28).
func addMonths(t time.Time, months int) time.Time {
	monthIndex := int(t.Month()) - 1 + months
	year := t.Year() + monthIndex/12
	month := time.Month(monthIndex%12 + 1)
	day := t.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Sync runs one full reconciliation pass: fetch schedules, expand and pair
// occurrences inside the window, replace the window's panel-owned events.
// A failed fetch leaves storage untouched and surfaces the reason code.
// force extends the windowed delete to soft-deleted rows.
func (s *CalendarService) Sync(ctx context.Context, cfg models.PelicanConfig, force bool) (SyncResult, error) {
	windowStart, windowEnd := s.Window()

	result := s.fetcher.FetchSchedules(ctx, cfg)
	if !result.OK {
		s.metrics.RecordSyncRun(result.Reason)
		return SyncResult{Reason: result.Reason}, nil
	}

	candidates := buildCandidates(result.Schedules, serverName(cfg), windowStart, windowEnd, "")

	if err := s.repo.DeleteEventsInRange(ctx, windowStart, windowEnd, true, force); err != nil {
		s.metrics.RecordSyncRun("storage_error")
		return SyncResult{}, fmt.Errorf("sync delete pass: %w", err)
	}

	gameIDs := map[string]uint64{}
	for _, candidate := range candidates {
		gameID, ok := gameIDs[candidate.GameName]
		if !ok {
			var err error
			gameID, err = s.repo.GetOrCreateGame(ctx, candidate.GameName)
			if err != nil {
				s.metrics.RecordSyncRun("storage_error")
				return SyncResult{}, fmt.Errorf("sync game create: %w", err)
			}
			gameIDs[candidate.GameName] = gameID
		}
		if err := s.upsertCandidate(ctx, candidate, gameID); err != nil {
			s.metrics.RecordSyncRun("storage_error")
			return SyncResult{}, err
		}
	}

	s.metrics.RecordSyncRun("ok")
	s.metrics.EventsSynced.Set(float64(len(candidates)))
	s.log.WithField("events", len(candidates)).Info("calendar sync completed")
	return SyncResult{OK: true, Events: len(candidates)}, nil
}

// ResyncGame rebuilds one game's events from the panel. All of the game's
// stored events are hard-deleted first, manual entries included.
func (s *CalendarService) ResyncGame(ctx context.Context, cfg models.PelicanConfig, game *models.Game) (SyncResult, error) {
	result := s.fetcher.FetchSchedules(ctx, cfg)
	if !result.OK {
		return SyncResult{Reason: result.Reason}, nil
	}
	gameName := strings.TrimSpace(game.Name)
	if gameName == "" {
		return SyncResult{Reason: ReasonMissingGame}, nil
	}

	windowStart, windowEnd := s.Window()
	candidates := buildCandidates(result.Schedules, serverName(cfg), windowStart, windowEnd, gameName)

	if err := s.repo.DeleteEventsByGame(ctx, game.ID); err != nil {
		return SyncResult{}, fmt.Errorf("resync delete pass: %w", err)
	}
	for _, candidate := range candidates {
		if err := s.upsertCandidate(ctx, candidate, game.ID); err != nil {
			return SyncResult{}, err
		}
	}

	s.log.WithField("game", gameName).WithField("events", len(candidates)).Info("game resync completed")
	return SyncResult{OK: true, Events: len(candidates)}, nil
}

func (s *CalendarService) upsertCandidate(ctx context.Context, candidate schedule.Candidate, gameID uint64) error {
	createdBy := syncedEventAuthor
	event := &models.CalendarEvent{
		ScheduleID: candidate.ScheduleID,
		GameID:     gameID,
		EventName:  candidate.EventName,
		StartUTC:   candidate.Start.UTC().Truncate(time.Second),
		CreatedBy:  &createdBy,
	}
	if candidate.Stop != nil {
		stop := candidate.Stop.UTC().Truncate(time.Second)
		event.StopUTC = &stop
	}
	if err := s.repo.UpsertEvent(ctx, event); err != nil {
		return fmt.Errorf("sync upsert: %w", err)
	}
	return nil
}

// buildCandidates expands every schedule's cron into occurrences inside the
// window and pairs them into event candidates. gameFilter, when set, keeps
// only schedules whose classified game matches it case-insensitively.
func buildCandidates(schedules []pelican.Schedule, defaultGame string, windowStart, windowEnd time.Time, gameFilter string) []schedule.Candidate {
	var occurrences []schedule.Occurrence
	for _, sched := range schedules {
		if sched.ID == "" {
			continue
		}
		name := sched.Name
		if name == "" {
			name = "Schedule"
		}
		gameName, eventName, kind := schedule.Classify(name, defaultGame)
		if gameFilter != "" && !strings.EqualFold(strings.TrimSpace(gameName), strings.TrimSpace(gameFilter)) {
			continue
		}
		for _, at := range sched.Cron.Occurrences(windowStart, windowEnd) {
			occurrences = append(occurrences, schedule.Occurrence{
				ScheduleID: sched.ID,
				GameName:   gameName,
				EventName:  eventName,
				Kind:       kind,
				At:         at,
			})
		}
	}
	return schedule.Pair(occurrences)
}

func serverName(cfg models.PelicanConfig) string {
	name := strings.TrimSpace(cfg.ServerName)
	if name == "" {
		return "Server"
	}
	return name
}

// ListWindowEvents returns the window's active events plus per-game source
// stats, filtered to games that still have active events.
func (s *CalendarService) ListWindowEvents(ctx context.Context) ([]*models.CalendarEvent, []*models.GameStats, error) {
	windowStart, windowEnd := s.Window()
	events, err := s.repo.ListEvents(ctx, &windowStart, &windowEnd, false)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.repo.ListGamesWithStats(ctx)
	if err != nil {
		return nil, nil, err
	}
	active := []*models.GameStats{}
	for _, stat := range stats {
		if stat.ActiveCount > 0 {
			active = append(active, stat)
		}
	}
	return events, active, nil
}

// CreateManualEvent stores an operator-created event under a local_ schedule
// id. stop, when present, must land after start.
func (s *CalendarService) CreateManualEvent(ctx context.Context, scheduleID, gameName, eventName string, start time.Time, stop *time.Time, description, createdBy string) (*models.CalendarEvent, error) {
	gameName = strings.TrimSpace(gameName)
	eventName = strings.TrimSpace(eventName)
	if gameName == "" || eventName == "" || start.IsZero() {
		return nil, ErrInvalidInput
	}
	if stop != nil && !stop.After(start) {
		return nil, ErrInvalidInput
	}

	gameID, err := s.repo.GetOrCreateGame(ctx, gameName)
	if err != nil {
		return nil, fmt.Errorf("manual event game create: %w", err)
	}

	event := &models.CalendarEvent{
		ScheduleID: scheduleID,
		GameID:     gameID,
		GameName:   gameName,
		EventName:  eventName,
		StartUTC:   start.UTC().Truncate(time.Second),
	}
	if stop != nil {
		stopUTC := stop.UTC().Truncate(time.Second)
		event.StopUTC = &stopUTC
	}
	if description = strings.TrimSpace(description); description != "" {
		event.Description = &description
	}
	if createdBy = strings.TrimSpace(createdBy); createdBy != "" {
		event.CreatedBy = &createdBy
	}

	id, err := s.repo.InsertEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("manual event insert: %w", err)
	}
	if id == 0 {
		return nil, ErrInvalidInput
	}
	event.ID = id
	return event, nil
}

// DeleteEvent soft-deletes one event. Non-admin users may only delete events
// they created themselves.
func (s *CalendarService) DeleteEvent(ctx context.Context, id uint64, username string, isAdmin bool) error {
	event, err := s.repo.GetEventByID(ctx, id)
	if err != nil {
		return err
	}
	if event == nil || event.IsDeleted {
		return ErrEventNotFound
	}
	if !isAdmin {
		if event.CreatedBy == nil || *event.CreatedBy == "" || *event.CreatedBy != username {
			return ErrNotAuthorized
		}
	}
	return s.repo.MarkEventDeleted(ctx, id)
}

// DeleteSource soft-deletes every event of one game and returns the count.
func (s *CalendarService) DeleteSource(ctx context.Context, gameID uint64) (int64, error) {
	game, err := s.repo.GetGameByID(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if game == nil {
		return 0, ErrGameNotFound
	}
	return s.repo.MarkEventsDeletedByGame(ctx, gameID)
}

// GetGame resolves a game id for handlers that gate on its existence.
func (s *CalendarService) GetGame(ctx context.Context, gameID uint64) (*models.Game, error) {
	return s.repo.GetGameByID(ctx, gameID)
}
