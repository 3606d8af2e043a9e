package moderation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/settings"
)

const (
	DefaultSpamThreshold = 5
	DefaultSpamWindow    = 10 * time.Second
	DefaultMuteDuration  = 5 * time.Minute
	DefaultWarnLimit     = 3
)

// ConcernSettings is the per-group state of one moderation concern.
type ConcernSettings struct {
	Enabled    bool     `json:"enabled"`
	Action     Action   `json:"action"`
	Exemptions []string `json:"exemptions,omitempty"`
}

type GroupSettings struct {
	Spam              ConcernSettings `json:"spam"`
	SpamThreshold     int             `json:"spam_threshold"`
	SpamWindowSeconds int             `json:"spam_window_seconds"`
	MuteMinutes       int             `json:"mute_minutes"`

	Profanity ConcernSettings `json:"profanity"`
	Words     []string        `json:"words,omitempty"`
	WarnLimit int             `json:"warn_limit"`

	Links          ConcernSettings `json:"links"`
	AllowedDomains []string        `json:"allowed_domains,omitempty"`
}

// DefaultGroupSettings has every concern disabled.
func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		Spam:              ConcernSettings{Action: ActionMute},
		SpamThreshold:     DefaultSpamThreshold,
		SpamWindowSeconds: int(DefaultSpamWindow / time.Second),
		MuteMinutes:       int(DefaultMuteDuration / time.Minute),
		Profanity:         ConcernSettings{Action: ActionKick},
		WarnLimit:         DefaultWarnLimit,
		Links:             ConcernSettings{Action: ActionDelete},
	}
}

func (g GroupSettings) spamWindow() time.Duration {
	if g.SpamWindowSeconds <= 0 {
		return DefaultSpamWindow
	}
	return time.Duration(g.SpamWindowSeconds) * time.Second
}

func (g GroupSettings) spamThreshold() int {
	if g.SpamThreshold <= 0 {
		return DefaultSpamThreshold
	}
	return g.SpamThreshold
}

func (g GroupSettings) muteDuration() time.Duration {
	if g.MuteMinutes <= 0 {
		return DefaultMuteDuration
	}
	return time.Duration(g.MuteMinutes) * time.Minute
}

func (g GroupSettings) warnLimit() int {
	if g.WarnLimit <= 0 {
		return DefaultWarnLimit
	}
	return g.WarnLimit
}

func (g GroupSettings) clone() GroupSettings {
	g.Spam.Exemptions = slices.Clone(g.Spam.Exemptions)
	g.Profanity.Exemptions = slices.Clone(g.Profanity.Exemptions)
	g.Links.Exemptions = slices.Clone(g.Links.Exemptions)
	g.Words = slices.Clone(g.Words)
	g.AllowedDomains = slices.Clone(g.AllowedDomains)
	return g
}

func settingsKey(groupID string) string { return "moderation:" + groupID }

// Repository reads and writes GroupSettings through a settings.Store and
// keeps a read-through copy in memory, since every group message reads it.
type Repository struct {
	store    settings.Store
	defaults GroupSettings

	mu    sync.Mutex
	cache map[string]GroupSettings
}

func NewRepository(store settings.Store, defaults GroupSettings) *Repository {
	return &Repository{
		store:    store,
		defaults: defaults,
		cache:    make(map[string]GroupSettings),
	}
}

// Get returns the settings of groupID, or the defaults when none were saved.
func (r *Repository) Get(ctx context.Context, groupID string) (GroupSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, groupID)
}

func (r *Repository) getLocked(ctx context.Context, groupID string) (GroupSettings, error) {
	if gs, ok := r.cache[groupID]; ok {
		return gs.clone(), nil
	}
	gs := r.defaults.clone()
	if _, err := r.store.Load(ctx, settingsKey(groupID), &gs); err != nil {
		return GroupSettings{}, fmt.Errorf("load moderation settings for %s: %w", groupID, err)
	}
	r.cache[groupID] = gs
	return gs.clone(), nil
}

// Update applies fn to the current settings of groupID and persists them.
func (r *Repository) Update(ctx context.Context, groupID string, fn func(*GroupSettings)) (GroupSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gs, err := r.getLocked(ctx, groupID)
	if err != nil {
		return GroupSettings{}, err
	}
	fn(&gs)
	if err := r.store.Save(ctx, settingsKey(groupID), gs); err != nil {
		return GroupSettings{}, fmt.Errorf("save moderation settings for %s: %w", groupID, err)
	}
	r.cache[groupID] = gs.clone()
	return gs, nil
}
