package config

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name:              "picowarden",
			Prefixes:          FlexibleStringSlice{"/"},
			Mode:              "public",
			SignificantDigits: 10,
		},
		Identity: IdentityConfig{
			CacheTTLSeconds: 30,
			MaxEntries:      1000,
		},
		Session: SessionConfig{
			TTLSeconds:    120,
			SweepSchedule: "*/2 * * * *",
		},
		Moderation: ModerationConfig{
			SpamThreshold:     5,
			SpamWindowSeconds: 10,
			SpamAction:        "mute",
			MuteMinutes:       5,
			WarnLimit:         3,
			ProfanityAction:   "kick",
			LinkAction:        "delete",
			SweepSchedule:     "1m",
		},
		Commands: CommandsConfig{
			File:           "~/.picowarden/commands.json",
			ReloadSchedule: "*/10 * * * *",
		},
		Settings: SettingsConfig{
			Backend:       "file",
			Path:          "~/.picowarden/settings.json",
			RedisPrefix:   "picowarden:",
			FlushSchedule: "30s",
		},
		Fallback: FallbackConfig{
			Provider:     "anthropic",
			SystemPrompt: "You are a concise, friendly assistant in a chat app. Keep replies short.",
			MaxTokens:    1024,
			HistoryTurns: 6,
		},
		Reactions: ReactionsConfig{
			Probability: 0.05,
			Emojis:      FlexibleStringSlice{"👍", "😂", "🔥", "❤️", "👀"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
