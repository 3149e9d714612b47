package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "PORT", "REFRESH_CRON", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "3306", cfg.Database.Port)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.RefreshCron, "background refresh is opt-in")
	assert.Empty(t, cfg.Redis.Addr, "cache is opt-in")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("PORT", "9090")
	t.Setenv("REFRESH_CRON", "*/15 * * * *")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("UPTIME_ATLAS_ADMIN_USER", "owner")

	cfg := LoadConfig()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "*/15 * * * *", cfg.Server.RefreshCron)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "owner", cfg.Admin.Username)
}
