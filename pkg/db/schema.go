package db

import (
	"database/sql"
	"fmt"
)

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		username VARCHAR(191) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'admin',
		timezone VARCHAR(64) NOT NULL DEFAULT 'America/New_York',
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		token_hash CHAR(64) NOT NULL,
		username VARCHAR(191) NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_sessions_token (token_hash)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS settings (
		` + "`key`" + ` VARCHAR(64) NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (` + "`key`" + `)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS games (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		name VARCHAR(191) NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_games_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS calendar_events (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		schedule_id VARCHAR(191) NOT NULL,
		game_id BIGINT UNSIGNED NOT NULL,
		event_name VARCHAR(255) NOT NULL,
		start_utc DATETIME NOT NULL,
		stop_utc DATETIME NULL,
		description TEXT NULL,
		created_by VARCHAR(191) NULL,
		is_deleted TINYINT(1) NOT NULL DEFAULT 0,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_calendar_events_schedule_start (schedule_id, start_utc),
		KEY idx_calendar_events_game (game_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS widgets (
		widget_key VARCHAR(64) NOT NULL,
		enabled TINYINT(1) NOT NULL,
		x INT NOT NULL,
		y INT NOT NULL,
		w INT NOT NULL,
		h INT NOT NULL,
		config_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (widget_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// backfillColumns are additive columns for databases created by older
// versions. Each is applied only when INFORMATION_SCHEMA says it is missing.
var backfillColumns = []struct {
	table  string
	column string
	ddl    string
}{
	{"users", "role", "role VARCHAR(16) NOT NULL DEFAULT 'admin'"},
	{"users", "timezone", "timezone VARCHAR(64) NOT NULL DEFAULT 'America/New_York'"},
	{"calendar_events", "description", "description TEXT NULL"},
	{"calendar_events", "created_by", "created_by VARCHAR(191) NULL"},
}

// EnsureSchema creates all tables and applies additive column backfill.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range createStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	for _, col := range backfillColumns {
		exists, err := columnExists(db, col.table, col.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", col.table, col.ddl)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", col.table, col.column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		AND COLUMN_NAME = ?`
	var count int
	if err := db.QueryRow(query, table, column).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}
