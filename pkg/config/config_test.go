package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, []string(cfg.Bot.Prefixes))
	assert.Equal(t, "public", cfg.Bot.Mode)
	assert.Equal(t, 5, cfg.Moderation.SpamThreshold)
	assert.Equal(t, 3, cfg.Moderation.WarnLimit)
}

func TestLoadConfig_FileOverridesAndNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"bot": {"prefixes": ["!", "."], "mode": "private", "owner": 15551234567, "admins": [15550000002, "alice"]},
		"moderation": {"spam_threshold": 8},
		"channels": {"telegram": {"enabled": true, "token": "abc", "allow_from": [123, "bob"]}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"!", "."}, []string(cfg.Bot.Prefixes))
	assert.Equal(t, FlexibleString("15551234567"), cfg.Bot.Owner)
	assert.Equal(t, []string{"15550000002", "alice"}, []string(cfg.Bot.Admins))
	assert.Equal(t, 8, cfg.Moderation.SpamThreshold)
	assert.Equal(t, 10, cfg.Moderation.SpamWindowSeconds, "unset fields keep defaults")
	assert.Equal(t, []string{"123", "bob"}, []string(cfg.Channels.Telegram.AllowFrom))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PICOWARDEN_BOT_MODE", "private")
	t.Setenv("PICOWARDEN_SETTINGS_BACKEND", "memory")
	t.Setenv("PICOWARDEN_MODERATION_FRESH_ADMIN_CHECK", "true")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "private", cfg.Bot.Mode)
	assert.Equal(t, "memory", cfg.Settings.Backend)
	assert.True(t, cfg.Moderation.FreshAdminCheck)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Bot.Mode = "stealth"
	cfg.Bot.Prefixes = FlexibleStringSlice{"a b"}
	cfg.Moderation.LinkAction = "ban"
	cfg.Settings.Backend = "redis"
	cfg.Fallback.Enabled = true
	cfg.Reactions.Probability = 2
	cfg.Channels.Discord.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"bot.mode", "invalid prefix", "moderation.link_action", "redis_addr",
		"fallback.api_key", "reactions.probability", "channels.discord.token",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Bot.Owner = "42"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, FlexibleString("42"), loaded.Bot.Owner)
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "x"), expandHome("~/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
	assert.Equal(t, "", expandHome(""))
}
