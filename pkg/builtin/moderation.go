package builtin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func describeConcern(name string, c moderation.ConcernSettings) string {
	return fmt.Sprintf("%s: %s (action: %s)", name, onOff(c.Enabled), c.Action)
}

func (b *builtins) settings(ctx context.Context, req *commands.Request) error {
	gs, err := b.Moderation.Get(ctx, req.ChatID)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("⚙️ Group settings\n")
	fmt.Fprintf(&sb, "%s, %d msgs / %ds, mute %dm\n",
		describeConcern("Anti-spam", gs.Spam), gs.SpamThreshold, gs.SpamWindowSeconds, gs.MuteMinutes)
	fmt.Fprintf(&sb, "%s, %d words, kick after %d warnings\n",
		describeConcern("Anti-swear", gs.Profanity), len(gs.Words), gs.WarnLimit)
	fmt.Fprintf(&sb, "%s, %d allowed domain(s), %d whitelisted\n",
		describeConcern("Anti-link", gs.Links), len(gs.AllowedDomains), len(gs.Links.Exemptions))
	fmt.Fprintf(&sb, "Bot mode: %s", b.Dispatcher.Mode())
	return req.Reply(ctx, sb.String())
}

// concernCommand handles the on/off/action subcommands shared by the three
// filters. extra handles filter-specific subcommands.
func (b *builtins) concernCommand(
	ctx context.Context,
	req *commands.Request,
	label string,
	pick func(*moderation.GroupSettings) *moderation.ConcernSettings,
	extra func(gs *moderation.GroupSettings, sub string, args []string) (string, bool, error),
) error {
	usage := fmt.Sprintf("Usage: %s%s on|off|action <warn|mute|kick|delete>", b.prefix(), req.Command)
	if len(req.Args) == 0 {
		gs, err := b.Moderation.Get(ctx, req.ChatID)
		if err != nil {
			return err
		}
		return req.Reply(ctx, describeConcern(label, *pick(&gs))+"\n"+usage)
	}

	sub := strings.ToLower(req.Args[0])
	var msg string
	var userErr error
	_, err := b.Moderation.Update(ctx, req.ChatID, func(gs *moderation.GroupSettings) {
		c := pick(gs)
		switch sub {
		case "on", "enable":
			c.Enabled = true
			msg = fmt.Sprintf("✅ %s enabled.", label)
		case "off", "disable":
			c.Enabled = false
			msg = fmt.Sprintf("✅ %s disabled.", label)
		case "action":
			if len(req.Args) < 2 {
				userErr = errors.New(usage)
				return
			}
			a, err := moderation.ParseAction(req.Args[1])
			if err != nil || a == moderation.ActionNone {
				userErr = errors.New(usage)
				return
			}
			c.Action = a
			msg = fmt.Sprintf("✅ %s action set to %s.", label, a)
		default:
			if extra != nil {
				var handled bool
				var err error
				msg, handled, err = extra(gs, sub, req.Args[1:])
				if err != nil {
					userErr = err
					return
				}
				if handled {
					return
				}
			}
			userErr = errors.New(usage)
		}
	})
	if err != nil {
		return err
	}
	if userErr != nil {
		return req.Reply(ctx, userErr.Error())
	}
	return req.Reply(ctx, msg)
}

func (b *builtins) antispam(ctx context.Context, req *commands.Request) error {
	return b.concernCommand(ctx, req, "Anti-spam",
		func(gs *moderation.GroupSettings) *moderation.ConcernSettings { return &gs.Spam },
		func(gs *moderation.GroupSettings, sub string, args []string) (string, bool, error) {
			if sub != "threshold" {
				return "", false, nil
			}
			if len(args) == 0 {
				return "", false, fmt.Errorf("Usage: %santispam threshold <n>", b.prefix())
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 2 {
				return "", false, errors.New("threshold must be a number of at least 2")
			}
			gs.SpamThreshold = n
			return fmt.Sprintf("✅ Anti-spam threshold set to %d messages.", n), true, nil
		})
}

func (b *builtins) antiswear(ctx context.Context, req *commands.Request) error {
	return b.concernCommand(ctx, req, "Anti-swear",
		func(gs *moderation.GroupSettings) *moderation.ConcernSettings { return &gs.Profanity }, nil)
}

func (b *builtins) antilink(ctx context.Context, req *commands.Request) error {
	return b.concernCommand(ctx, req, "Anti-link",
		func(gs *moderation.GroupSettings) *moderation.ConcernSettings { return &gs.Links },
		func(gs *moderation.GroupSettings, sub string, args []string) (string, bool, error) {
			if sub != "allow" && sub != "deny" {
				return "", false, nil
			}
			if len(args) == 0 {
				return "", false, fmt.Errorf("Usage: %santilink %s <domain>", b.prefix(), sub)
			}
			domain := strings.ToLower(strings.TrimPrefix(args[0], "www."))
			if sub == "allow" {
				if !slices.Contains(gs.AllowedDomains, domain) {
					gs.AllowedDomains = append(gs.AllowedDomains, domain)
				}
				return fmt.Sprintf("✅ Links to %s are allowed.", domain), true, nil
			}
			gs.AllowedDomains = slices.DeleteFunc(gs.AllowedDomains, func(d string) bool { return d == domain })
			return fmt.Sprintf("✅ Links to %s are no longer allowed.", domain), true, nil
		})
}

func userArg(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// listCommand implements add/remove/list over one string list of the group.
func (b *builtins) listCommand(
	ctx context.Context,
	req *commands.Request,
	label string,
	pick func(*moderation.GroupSettings) *[]string,
	normalize func(string) string,
) error {
	usage := fmt.Sprintf("Usage: %s%s add|remove <value...>|list", b.prefix(), req.Command)
	sub := "list"
	if len(req.Args) > 0 {
		sub = strings.ToLower(req.Args[0])
	}

	if sub == "list" {
		gs, err := b.Moderation.Get(ctx, req.ChatID)
		if err != nil {
			return err
		}
		items := *pick(&gs)
		if len(items) == 0 {
			return req.Reply(ctx, fmt.Sprintf("%s is empty.", label))
		}
		return req.Reply(ctx, fmt.Sprintf("%s (%d):\n%s", label, len(items), strings.Join(items, "\n")))
	}
	if (sub != "add" && sub != "remove") || len(req.Args) < 2 {
		return req.Reply(ctx, usage)
	}

	values := make([]string, 0, len(req.Args)-1)
	for _, a := range req.Args[1:] {
		if v := normalize(a); v != "" {
			values = append(values, v)
		}
	}
	var changed int
	_, err := b.Moderation.Update(ctx, req.ChatID, func(gs *moderation.GroupSettings) {
		list := pick(gs)
		for _, v := range values {
			has := slices.Contains(*list, v)
			switch {
			case sub == "add" && !has:
				*list = append(*list, v)
				changed++
			case sub == "remove" && has:
				*list = slices.DeleteFunc(*list, func(x string) bool { return x == v })
				changed++
			}
		}
	})
	if err != nil {
		return err
	}
	verb := "Added"
	if sub == "remove" {
		verb = "Removed"
	}
	return req.Reply(ctx, fmt.Sprintf("✅ %s %d item(s) in %s.", verb, changed, strings.ToLower(label)))
}

func (b *builtins) whitelist(ctx context.Context, req *commands.Request) error {
	return b.listCommand(ctx, req, "Link whitelist",
		func(gs *moderation.GroupSettings) *[]string { return &gs.Links.Exemptions }, userArg)
}

func (b *builtins) badwords(ctx context.Context, req *commands.Request) error {
	return b.listCommand(ctx, req, "Bad words",
		func(gs *moderation.GroupSettings) *[]string { return &gs.Words },
		func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

func (b *builtins) resetwarn(ctx context.Context, req *commands.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Usage: %sresetwarn <user>", b.prefix()))
	}
	user := userArg(req.Args[0])
	ok, err := b.Profanity.ResetWarnings(ctx, req.ChatID, user)
	if err != nil {
		return err
	}
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("%s has no warnings.", user))
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Warnings for %s cleared.", user))
}
