package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so owner/admin/allow_from lists can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// FlexibleString is a string that also accepts a JSON number, for phone
// numbers and numeric user ids written without quotes.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleString(n.String())
	return nil
}

type Config struct {
	Bot        BotConfig        `json:"bot"`
	Identity   IdentityConfig   `json:"identity"`
	Session    SessionConfig    `json:"session"`
	Moderation ModerationConfig `json:"moderation"`
	Commands   CommandsConfig   `json:"commands"`
	Settings   SettingsConfig   `json:"settings"`
	Fallback   FallbackConfig   `json:"fallback"`
	Reactions  ReactionsConfig  `json:"reactions"`
	Channels   ChannelsConfig   `json:"channels"`
	Logging    LoggingConfig    `json:"logging"`
}

type BotConfig struct {
	Name              string              `env:"PICOWARDEN_BOT_NAME"               json:"name"`
	Prefixes          FlexibleStringSlice `env:"PICOWARDEN_BOT_PREFIXES"           json:"prefixes"`
	Mode              string              `env:"PICOWARDEN_BOT_MODE"               json:"mode"`
	Owner             FlexibleString      `env:"PICOWARDEN_BOT_OWNER"              json:"owner"`
	Admins            FlexibleStringSlice `env:"PICOWARDEN_BOT_ADMINS"             json:"admins"`
	SignificantDigits int                 `env:"PICOWARDEN_BOT_SIGNIFICANT_DIGITS" json:"significant_digits"`
}

type IdentityConfig struct {
	CacheTTLSeconds int `env:"PICOWARDEN_IDENTITY_CACHE_TTL_SECONDS" json:"cache_ttl_seconds"`
	MaxEntries      int `env:"PICOWARDEN_IDENTITY_MAX_ENTRIES"       json:"max_entries"`
}

type SessionConfig struct {
	TTLSeconds    int    `env:"PICOWARDEN_SESSION_TTL_SECONDS"    json:"ttl_seconds"`
	SweepSchedule string `env:"PICOWARDEN_SESSION_SWEEP_SCHEDULE" json:"sweep_schedule"`
}

type ModerationConfig struct {
	SpamThreshold     int                 `env:"PICOWARDEN_MODERATION_SPAM_THRESHOLD"      json:"spam_threshold"`
	SpamWindowSeconds int                 `env:"PICOWARDEN_MODERATION_SPAM_WINDOW_SECONDS" json:"spam_window_seconds"`
	SpamAction        string              `env:"PICOWARDEN_MODERATION_SPAM_ACTION"         json:"spam_action"`
	MuteMinutes       int                 `env:"PICOWARDEN_MODERATION_MUTE_MINUTES"        json:"mute_minutes"`
	WarnLimit         int                 `env:"PICOWARDEN_MODERATION_WARN_LIMIT"          json:"warn_limit"`
	ProfanityAction   string              `env:"PICOWARDEN_MODERATION_PROFANITY_ACTION"    json:"profanity_action"`
	Words             FlexibleStringSlice `env:"PICOWARDEN_MODERATION_WORDS"               json:"words"`
	LinkAction        string              `env:"PICOWARDEN_MODERATION_LINK_ACTION"         json:"link_action"`
	FreshAdminCheck   bool                `env:"PICOWARDEN_MODERATION_FRESH_ADMIN_CHECK"   json:"fresh_admin_check"`
	SweepSchedule     string              `env:"PICOWARDEN_MODERATION_SWEEP_SCHEDULE"      json:"sweep_schedule"`
}

type CommandsConfig struct {
	File           string `env:"PICOWARDEN_COMMANDS_FILE"            json:"file"`
	ReloadSchedule string `env:"PICOWARDEN_COMMANDS_RELOAD_SCHEDULE" json:"reload_schedule"`
}

type SettingsConfig struct {
	Backend       string `env:"PICOWARDEN_SETTINGS_BACKEND"        json:"backend"`
	Path          string `env:"PICOWARDEN_SETTINGS_PATH"           json:"path"`
	RedisAddr     string `env:"PICOWARDEN_SETTINGS_REDIS_ADDR"     json:"redis_addr,omitempty"`
	RedisPassword string `env:"PICOWARDEN_SETTINGS_REDIS_PASSWORD" json:"redis_password,omitempty"`
	RedisDB       int    `env:"PICOWARDEN_SETTINGS_REDIS_DB"       json:"redis_db,omitempty"`
	RedisPrefix   string `env:"PICOWARDEN_SETTINGS_REDIS_PREFIX"   json:"redis_prefix,omitempty"`
	FlushSchedule string `env:"PICOWARDEN_SETTINGS_FLUSH_SCHEDULE" json:"flush_schedule"`
}

type FallbackConfig struct {
	Enabled      bool   `env:"PICOWARDEN_FALLBACK_ENABLED"       json:"enabled"`
	Provider     string `env:"PICOWARDEN_FALLBACK_PROVIDER"      json:"provider"`
	Model        string `env:"PICOWARDEN_FALLBACK_MODEL"         json:"model"`
	APIKey       string `env:"PICOWARDEN_FALLBACK_API_KEY"       json:"api_key"`
	APIBase      string `env:"PICOWARDEN_FALLBACK_API_BASE"      json:"api_base,omitempty"`
	SystemPrompt string `env:"PICOWARDEN_FALLBACK_SYSTEM_PROMPT" json:"system_prompt"`
	MaxTokens    int    `env:"PICOWARDEN_FALLBACK_MAX_TOKENS"    json:"max_tokens"`
	HistoryTurns int    `env:"PICOWARDEN_FALLBACK_HISTORY_TURNS" json:"history_turns"`
}

type ReactionsConfig struct {
	Enabled     bool                `env:"PICOWARDEN_REACTIONS_ENABLED"     json:"enabled"`
	Probability float64             `env:"PICOWARDEN_REACTIONS_PROBABILITY" json:"probability"`
	Emojis      FlexibleStringSlice `env:"PICOWARDEN_REACTIONS_EMOJIS"      json:"emojis"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Bridge   BridgeConfig   `json:"bridge"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"PICOWARDEN_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"PICOWARDEN_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	Proxy     string              `env:"PICOWARDEN_CHANNELS_TELEGRAM_PROXY"      json:"proxy"`
	AllowFrom FlexibleStringSlice `env:"PICOWARDEN_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"PICOWARDEN_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"PICOWARDEN_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"PICOWARDEN_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

// BridgeConfig points at a websocket bridge that relays a chat network
// (for example a WhatsApp multi-device bridge) as JSON frames.
type BridgeConfig struct {
	Enabled   bool                `env:"PICOWARDEN_CHANNELS_BRIDGE_ENABLED"    json:"enabled"`
	URL       string              `env:"PICOWARDEN_CHANNELS_BRIDGE_URL"        json:"url"`
	Name      string              `env:"PICOWARDEN_CHANNELS_BRIDGE_NAME"       json:"name"`
	AllowFrom FlexibleStringSlice `env:"PICOWARDEN_CHANNELS_BRIDGE_ALLOW_FROM" json:"allow_from"`
}

type LoggingConfig struct {
	Level string `env:"PICOWARDEN_LOGGING_LEVEL" json:"level"`
	JSON  bool   `env:"PICOWARDEN_LOGGING_JSON"  json:"json"`
}

// LoadConfig reads path over DefaultConfig and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		// Lists replace the defaults instead of merging element-wise.
		var probe struct {
			Bot struct {
				Prefixes json.RawMessage `json:"prefixes"`
			} `json:"bot"`
			Reactions struct {
				Emojis json.RawMessage `json:"emojis"`
			} `json:"reactions"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(probe.Bot.Prefixes) > 0 {
			cfg.Bot.Prefixes = nil
		}
		if len(probe.Reactions.Emojis) > 0 {
			cfg.Reactions.Emojis = nil
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

var validActions = map[string]bool{"none": true, "delete": true, "warn": true, "mute": true, "kick": true}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Bot.Prefixes) == 0 {
		errs = append(errs, errors.New("bot.prefixes must not be empty"))
	}
	for _, p := range c.Bot.Prefixes {
		if p == "" || strings.ContainsAny(p, " \t\n") {
			errs = append(errs, fmt.Errorf("bot.prefixes: invalid prefix %q", p))
		}
	}
	switch c.Bot.Mode {
	case "public", "private":
	default:
		errs = append(errs, fmt.Errorf("bot.mode must be public or private, got %q", c.Bot.Mode))
	}
	if c.Bot.SignificantDigits < 0 {
		errs = append(errs, errors.New("bot.significant_digits must not be negative"))
	}

	for name, a := range map[string]string{
		"moderation.spam_action":      c.Moderation.SpamAction,
		"moderation.profanity_action": c.Moderation.ProfanityAction,
		"moderation.link_action":      c.Moderation.LinkAction,
	} {
		if !validActions[a] {
			errs = append(errs, fmt.Errorf("%s: unknown action %q", name, a))
		}
	}

	switch c.Settings.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Settings.Path == "" {
			errs = append(errs, fmt.Errorf("settings.path is required for the %s backend", c.Settings.Backend))
		}
	case "redis":
		if c.Settings.RedisAddr == "" {
			errs = append(errs, errors.New("settings.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("settings.backend: unknown backend %q", c.Settings.Backend))
	}

	if c.Fallback.Enabled {
		if c.Fallback.APIKey == "" {
			errs = append(errs, errors.New("fallback.api_key is required when fallback is enabled"))
		}
		switch c.Fallback.Provider {
		case "anthropic", "openai":
		default:
			errs = append(errs, fmt.Errorf("fallback.provider: unknown provider %q", c.Fallback.Provider))
		}
	}

	if c.Reactions.Probability < 0 || c.Reactions.Probability > 1 {
		errs = append(errs, errors.New("reactions.probability must be between 0 and 1"))
	}

	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		errs = append(errs, errors.New("channels.telegram.token is required"))
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		errs = append(errs, errors.New("channels.discord.token is required"))
	}
	if c.Channels.Bridge.Enabled && c.Channels.Bridge.URL == "" {
		errs = append(errs, errors.New("channels.bridge.url is required"))
	}

	return errors.Join(errs...)
}

// SettingsPath returns the settings path with ~ expanded.
func (c *Config) SettingsPath() string {
	return expandHome(c.Settings.Path)
}

func (c *Config) CommandsFile() string {
	return expandHome(c.Commands.File)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
