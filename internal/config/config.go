package config

import (
	"os"
)

// Config holds all configuration for the server
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Redis    RedisConfig
	Admin    AdminConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	// RefreshCron is a five-field cron expression for the background
	// calendar refresh. Empty disables it.
	RefreshCron string
}

// RedisConfig holds the optional cache configuration. An empty Addr runs
// the server without Redis.
type RedisConfig struct {
	Addr     string
	Password string
}

// AdminConfig seeds the first account when the users table is empty
type AdminConfig struct {
	Username string
	Password string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_DATABASE", "uptime_atlas"),
		},
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			RefreshCron: getEnv("REFRESH_CRON", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Admin: AdminConfig{
			Username: getEnv("UPTIME_ATLAS_ADMIN_USER", ""),
			Password: getEnv("UPTIME_ATLAS_ADMIN_PASSWORD", ""),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
