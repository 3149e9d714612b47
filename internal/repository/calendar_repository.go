package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sjdodge123/uptime-atlas/internal/models"
)

// CalendarRepositoryInterface defines the interface for calendar repository operations
type CalendarRepositoryInterface interface {
	UpsertEvent(ctx context.Context, event *models.CalendarEvent) error
	InsertEvent(ctx context.Context, event *models.CalendarEvent) (uint64, error)
	ListEvents(ctx context.Context, start, end *time.Time, includeDeleted bool) ([]*models.CalendarEvent, error)
	GetEventByID(ctx context.Context, id uint64) (*models.CalendarEvent, error)
	MarkEventDeleted(ctx context.Context, id uint64) error
	MarkEventsDeletedByGame(ctx context.Context, gameID uint64) (int64, error)
	DeleteEventsByGame(ctx context.Context, gameID uint64) error
	DeleteEventsInRange(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error
	GetOrCreateGame(ctx context.Context, name string) (uint64, error)
	GetGameByID(ctx context.Context, id uint64) (*models.Game, error)
	ListGamesWithStats(ctx context.Context) ([]*models.GameStats, error)
}

type CalendarRepository struct {
	db *sql.DB
}

func NewCalendarRepository(db *sql.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

const eventColumns = `
	calendar_events.id,
	calendar_events.schedule_id,
	calendar_events.game_id,
	COALESCE(games.name, '') AS game_name,
	calendar_events.event_name,
	calendar_events.start_utc,
	calendar_events.stop_utc,
	calendar_events.description,
	calendar_events.created_by,
	calendar_events.is_deleted`

// UpsertEvent inserts or refreshes one synced event keyed by
// (schedule_id, start_utc). Soft-deleted rows keep their old values so a
// resync never resurrects an event an operator removed.
func (r *CalendarRepository) UpsertEvent(ctx context.Context, event *models.CalendarEvent) error {
	if event.ScheduleID == "" || event.EventName == "" || event.GameID == 0 || event.StartUTC.IsZero() {
		return nil
	}
	query := `
		INSERT INTO calendar_events (schedule_id, game_id, event_name, start_utc, stop_utc, description, created_by, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE
			game_id = IF(is_deleted = 0, VALUES(game_id), game_id),
			event_name = IF(is_deleted = 0, VALUES(event_name), event_name),
			stop_utc = IF(is_deleted = 0, VALUES(stop_utc), stop_utc),
			description = IF(is_deleted = 0, VALUES(description), description),
			created_by = IF(is_deleted = 0, VALUES(created_by), created_by)`
	_, err := r.db.ExecContext(ctx, query,
		event.ScheduleID,
		event.GameID,
		event.EventName,
		event.StartUTC,
		event.StopUTC,
		event.Description,
		event.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// InsertEvent stores a manual event and returns its id.
func (r *CalendarRepository) InsertEvent(ctx context.Context, event *models.CalendarEvent) (uint64, error) {
	if event.ScheduleID == "" || event.EventName == "" || event.GameID == 0 || event.StartUTC.IsZero() {
		return 0, nil
	}
	query := `
		INSERT INTO calendar_events (schedule_id, game_id, event_name, start_utc, stop_utc, description, created_by, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	result, err := r.db.ExecContext(ctx, query,
		event.ScheduleID,
		event.GameID,
		event.EventName,
		event.StartUTC,
		event.StopUTC,
		event.Description,
		event.CreatedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}
	return uint64(id), nil
}

// ListEvents returns events ordered by start time. Nil bounds are open.
func (r *CalendarRepository) ListEvents(ctx context.Context, start, end *time.Time, includeDeleted bool) ([]*models.CalendarEvent, error) {
	query := "SELECT" + eventColumns + `
		FROM calendar_events
		LEFT JOIN games ON games.id = calendar_events.game_id
		WHERE 1=1`
	args := []interface{}{}

	if !includeDeleted {
		query += " AND calendar_events.is_deleted = 0"
	}
	if start != nil {
		query += " AND calendar_events.start_utc >= ?"
		args = append(args, *start)
	}
	if end != nil {
		query += " AND calendar_events.start_utc < ?"
		args = append(args, *end)
	}
	query += " ORDER BY calendar_events.start_utc ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*models.CalendarEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// GetEventByID retrieves one event regardless of deletion state.
func (r *CalendarRepository) GetEventByID(ctx context.Context, id uint64) (*models.CalendarEvent, error) {
	query := "SELECT" + eventColumns + `
		FROM calendar_events
		LEFT JOIN games ON games.id = calendar_events.game_id
		WHERE calendar_events.id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *CalendarRepository) MarkEventDeleted(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE calendar_events SET is_deleted = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark event deleted: %w", err)
	}
	return nil
}

// MarkEventsDeletedByGame soft-deletes every event of a game and returns the
// affected row count.
func (r *CalendarRepository) MarkEventsDeletedByGame(ctx context.Context, gameID uint64) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE calendar_events SET is_deleted = 1 WHERE game_id = ?", gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark game events deleted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// DeleteEventsByGame hard-deletes every event of a game, soft-deleted rows
// included. Used by per-game resync only.
func (r *CalendarRepository) DeleteEventsByGame(ctx context.Context, gameID uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE game_id = ?", gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game events: %w", err)
	}
	return nil
}

// DeleteEventsInRange hard-deletes events starting in [start, end).
// excludeLocal keeps manually created events; includeDeleted extends the
// delete to soft-deleted rows (forced sync).
func (r *CalendarRepository) DeleteEventsInRange(ctx context.Context, start, end time.Time, excludeLocal, includeDeleted bool) error {
	query := "DELETE FROM calendar_events WHERE start_utc >= ? AND start_utc < ?"
	args := []interface{}{start, end}
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}
	if excludeLocal {
		query += " AND schedule_id NOT LIKE ?"
		args = append(args, models.LocalSchedulePrefix+"%")
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete events in range: %w", err)
	}
	return nil
}

// GetOrCreateGame resolves a game name to its id, creating the row on first
// use. Blank names collapse to "General".
func (r *CalendarRepository) GetOrCreateGame(ctx context.Context, name string) (uint64, error) {
	gameName := name
	if gameName == "" {
		gameName = "General"
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO games (name, created_at) VALUES (?, NOW())", gameName)
	if err != nil {
		return 0, fmt.Errorf("failed to create game: %w", err)
	}
	var id uint64
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM games WHERE name = ?", gameName).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get game id: %w", err)
	}
	return id, nil
}

func (r *CalendarRepository) GetGameByID(ctx context.Context, id uint64) (*models.Game, error) {
	var game models.Game
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM games WHERE id = ?", id).
		Scan(&game.ID, &game.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &game, nil
}

// ListGamesWithStats returns all games with event counts by state and source.
func (r *CalendarRepository) ListGamesWithStats(ctx context.Context) ([]*models.GameStats, error) {
	query := `
		SELECT
			games.id,
			games.name,
			COALESCE(SUM(CASE WHEN calendar_events.is_deleted = 0 THEN 1 ELSE 0 END), 0) AS active_count,
			COALESCE(SUM(CASE WHEN calendar_events.is_deleted = 1 THEN 1 ELSE 0 END), 0) AS deleted_count,
			COALESCE(SUM(CASE WHEN calendar_events.schedule_id NOT LIKE ? THEN 1 ELSE 0 END), 0) AS pelican_count
		FROM games
		LEFT JOIN calendar_events ON calendar_events.game_id = games.id
		GROUP BY games.id, games.name
		ORDER BY games.name`
	rows, err := r.db.QueryContext(ctx, query, models.LocalSchedulePrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list game stats: %w", err)
	}
	defer rows.Close()

	stats := []*models.GameStats{}
	for rows.Next() {
		var s models.GameStats
		if err := rows.Scan(&s.ID, &s.Name, &s.ActiveCount, &s.DeletedCount, &s.PelicanCount); err != nil {
			return nil, fmt.Errorf("failed to scan game stats: %w", err)
		}
		stats = append(stats, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	err := row.Scan(
		&event.ID,
		&event.ScheduleID,
		&event.GameID,
		&event.GameName,
		&event.EventName,
		&event.StartUTC,
		&event.StopUTC,
		&event.Description,
		&event.CreatedBy,
		&event.IsDeleted,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return &event, nil
}
