// Package builtin provides the commands every deployment ships with: help,
// bot mode, moderation toggles and maintenance.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/dispatch"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
	"github.com/tinyland-inc/picowarden/pkg/session"
	"github.com/tinyland-inc/picowarden/pkg/settings"
)

const (
	SourceName = "builtin"
	ModeKey    = "bot:mode"

	categoryGeneral    = "general"
	categoryModeration = "moderation"
	categoryOwner      = "owner"
)

type Deps struct {
	Registry   *commands.Registry
	Sessions   *session.Store
	Dispatcher *dispatch.Dispatcher
	Settings   settings.Store
	Moderation *moderation.Repository
	Profanity  *moderation.ProfanityInspector
	BotName    string
	Started    time.Time
	SessionTTL time.Duration
}

type builtins struct {
	Deps
}

// Source returns the built-in commands as a registry source.
func Source(deps Deps) commands.Source {
	return commands.NewStaticSource(SourceName, Descriptors(deps)...)
}

func Descriptors(deps Deps) []commands.Descriptor {
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = session.DefaultTTL
	}
	b := &builtins{Deps: deps}
	return []commands.Descriptor{
		{
			Name: "menu", Aliases: []string{"help", "h"}, Category: categoryGeneral,
			Description: "List available commands",
			Handler:     b.menu,
		},
		{
			Name: "ping", Category: categoryGeneral,
			Description: "Check that the bot is alive",
			Handler:     b.ping,
		},
		{
			Name: "cancel", Category: categoryGeneral,
			Description: "Drop any pending question in this chat",
			Handler:     b.cancel,
		},
		{
			Name: "mode", Category: categoryOwner, RequiresOwner: true,
			Description: "Switch between public and private mode",
			Usage:       "[public|private]",
			Handler:     b.mode,
		},
		{
			Name: "reload", Category: categoryOwner, RequiresOwner: true,
			Description: "Reload all command sources",
			Handler:     b.reload,
		},
		{
			Name: "settings", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Show this group's moderation settings",
			Handler:     b.settings,
		},
		{
			Name: "antispam", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Configure the spam filter",
			Usage:       "on|off|action <warn|mute|kick|delete>|threshold <n>",
			Handler:     b.antispam,
		},
		{
			Name: "antiswear", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Configure the profanity filter",
			Usage:       "on|off|action <warn|mute|kick|delete>",
			Handler:     b.antiswear,
		},
		{
			Name: "antilink", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Configure the link filter",
			Usage:       "on|off|action <warn|mute|kick|delete>|allow <domain>|deny <domain>",
			Handler:     b.antilink,
		},
		{
			Name: "whitelist", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Members allowed to post links",
			Usage:       "add|remove <user>|list",
			Handler:     b.whitelist,
		},
		{
			Name: "badwords", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Manage the profanity word list",
			Usage:       "add|remove <word...>|list",
			Handler:     b.badwords,
		},
		{
			Name: "resetwarn", Category: categoryModeration, RequiresAdmin: true, GroupOnly: true,
			Description: "Clear a member's profanity warnings",
			Usage:       "<user>",
			Handler:     b.resetwarn,
		},
	}
}

// Continuations returns the session continuations the built-ins start.
func Continuations(deps Deps) []dispatch.Continuation {
	b := &builtins{Deps: deps}
	return []dispatch.Continuation{
		{
			Kind:   session.KindModeChoice,
			Accept: session.OneOf("1", "2", "public", "private"),
			Resume: b.resumeMode,
		},
	}
}

// LoadMode returns the persisted bot mode, if one was saved.
func LoadMode(ctx context.Context, store settings.Store) (dispatch.Mode, bool, error) {
	var raw string
	ok, err := store.Load(ctx, ModeKey, &raw)
	if err != nil || !ok {
		return "", false, err
	}
	m, err := dispatch.ParseMode(raw)
	if err != nil {
		return "", false, err
	}
	return m, true, nil
}

func (b *builtins) prefix() string {
	if b.Dispatcher == nil {
		return "/"
	}
	return b.Dispatcher.Prefix()
}

func (b *builtins) menu(ctx context.Context, req *commands.Request) error {
	var sb strings.Builder
	name := b.BotName
	if name == "" {
		name = "picowarden"
	}
	fmt.Fprintf(&sb, "📋 %s commands\n", name)

	category := ""
	for _, d := range b.Registry.List() {
		if !d.Allows(req.Verdict) {
			continue
		}
		if d.GroupOnly && !req.Event.IsGroup() {
			continue
		}
		if d.Category != category {
			category = d.Category
			if category != "" {
				fmt.Fprintf(&sb, "\n*%s*\n", strings.ToUpper(category[:1])+category[1:])
			}
		}
		fmt.Fprintf(&sb, "%s%s", b.prefix(), d.Name)
		if d.Usage != "" {
			fmt.Fprintf(&sb, " %s", d.Usage)
		}
		if d.Description != "" {
			fmt.Fprintf(&sb, " - %s", d.Description)
		}
		sb.WriteByte('\n')
	}
	return req.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

func (b *builtins) ping(ctx context.Context, req *commands.Request) error {
	uptime := time.Since(b.Started).Truncate(time.Second)
	return req.Reply(ctx, fmt.Sprintf("🏓 pong (uptime %s)", uptime))
}

func (b *builtins) cancel(ctx context.Context, req *commands.Request) error {
	n := b.Sessions.CancelAll(req.ChatID)
	if n == 0 {
		return req.Reply(ctx, "Nothing to cancel.")
	}
	return req.Reply(ctx, fmt.Sprintf("Cancelled %d pending question(s).", n))
}

func (b *builtins) reload(ctx context.Context, req *commands.Request) error {
	report := b.Registry.Reload(ctx)
	msg := fmt.Sprintf("♻️ Reloaded %d command(s).", len(report.Loaded))
	for _, f := range report.Failed {
		msg += fmt.Sprintf("\n⚠️ %s (%s): %v", f.Name, f.Source, f.Err)
	}
	return req.Reply(ctx, msg)
}
