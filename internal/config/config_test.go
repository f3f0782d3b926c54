package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 5*time.Minute, cfg.CacheDefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.CacheSweepInterval)
	assert.Equal(t, 500, cfg.AlertLimit)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, ":8787", cfg.AdminAddr)
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("WORKERS", "4")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("DISCORD_GUILD_BLACKLIST", "g1,g2")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.CacheDefaultTTL)
	assert.Equal(t, []string{"g1", "g2"}, cfg.GuildBlacklist)
}

func TestBadValueFailsParse(t *testing.T) {
	t.Setenv("WORKERS", "many")
	_, err := Parse()
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALERT_CHANNEL_ID=chan-42\n"), 0o644))
	t.Setenv("ALERT_CHANNEL_ID", "")
	require.NoError(t, os.Unsetenv("ALERT_CHANNEL_ID"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chan-42", cfg.AlertChannelID)
}

func TestValidate(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	cfg.Workers = 0
	cfg.LogLevel = "loud"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKERS")
	assert.Contains(t, err.Error(), "LOG_LEVEL")

	cfg.Workers = 1
	cfg.LogLevel = "debug"
	cfg.DiscordToken = ""
	assert.ErrorContains(t, cfg.ValidateDiscord(), "DISCORD_TOKEN")
	cfg.DiscordToken = "token"
	assert.NoError(t, cfg.ValidateDiscord())
}
