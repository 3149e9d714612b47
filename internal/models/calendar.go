package models

import (
	"strings"
	"time"
)

// LocalSchedulePrefix marks events created through the API rather than pulled
// from the panel. Local rows are exempt from windowed external deletion.
const LocalSchedulePrefix = "local_"

// CalendarEvent is one stored calendar entry, synced or manual
type CalendarEvent struct {
	ID          uint64     `db:"id" json:"id"`
	ScheduleID  string     `db:"schedule_id" json:"schedule_id"`
	GameID      uint64     `db:"game_id" json:"game_id"`
	GameName    string     `db:"game_name" json:"game"`
	EventName   string     `db:"event_name" json:"name"`
	StartUTC    time.Time  `db:"start_utc" json:"start"`
	StopUTC     *time.Time `db:"stop_utc" json:"stop,omitempty"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	IsDeleted   bool       `db:"is_deleted" json:"-"`
}

// IsLocal reports whether the event was created through the API.
func (e *CalendarEvent) IsLocal() bool {
	return strings.HasPrefix(e.ScheduleID, LocalSchedulePrefix)
}

// Game groups events under one server or title
type Game struct {
	ID        uint64    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// GameStats holds per-game source counts for the events response
type GameStats struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	ActiveCount  int    `json:"active_count"`
	DeletedCount int    `json:"deleted_count"`
	PelicanCount int    `json:"pelican_count"`
}
