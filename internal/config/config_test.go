package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("GLOBLE_TEST_WEBHOOK", "https://discord.example/api/webhooks/1/abc")

	path := writeConfig(t, `
server:
  port: 9090
storage:
  backend: redis
redis:
  addr: redis:6379
discord:
  webhook_url: ${GLOBLE_TEST_WEBHOOK}
  channel_id: "42"
game:
  reference_timezone: Europe/London
  morning_hour: 0
  evening_hour: 20
  reminder_window: 10
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "https://discord.example/api/webhooks/1/abc", cfg.Discord.WebhookURL)
	assert.Equal(t, "42", cfg.Discord.ChannelID)
	assert.Equal(t, 0, cfg.Game.Morning())
	assert.Equal(t, 20, cfg.Game.Evening())
	assert.Equal(t, 10, cfg.Game.ReminderWindow)
	assert.Equal(t, "debug", cfg.Log.Level)

	loc, err := cfg.Game.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())

	// defaults fill the rest
	assert.Equal(t, "globle:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "!", cfg.Discord.CommandPrefix)
	assert.Equal(t, "globle", cfg.Game.Keyword)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, ".", cfg.Storage.Dir)
	assert.Equal(t, "America/New_York", cfg.Game.ReferenceTimezone)
	assert.Equal(t, 8, cfg.Game.Morning())
	assert.Equal(t, 21, cfg.Game.Evening())
	assert.Equal(t, 5, cfg.Game.ReminderWindow)
	assert.Equal(t, 10*time.Second, cfg.Game.TickCooldown)
	assert.Equal(t, "globle-chat-events", cfg.Kafka.Topic)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	hour := func(h int) *int { return &h }

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Storage.Backend = "sqlite" },
			want:   `unknown storage backend "sqlite"`,
		},
		{
			name:   "bad zone",
			mutate: func(c *Config) { c.Game.ReferenceTimezone = "Mars/Olympus" },
			want:   "Mars/Olympus",
		},
		{
			name:   "morning out of range",
			mutate: func(c *Config) { c.Game.MorningHour = hour(24) },
			want:   "morning_hour 24 out of range",
		},
		{
			name:   "same hours",
			mutate: func(c *Config) { c.Game.EveningHour = hour(8) },
			want:   "must differ",
		},
		{
			name:   "window too wide",
			mutate: func(c *Config) { c.Game.ReminderWindow = 60 },
			want:   "reminder_window 60 out of range",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")

	_, err = Load(writeConfig(t, "server: [1, 2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")

	_, err = Load(writeConfig(t, "game:\n  reminder_window: 90\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
