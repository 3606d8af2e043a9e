package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/dispatch"
	"github.com/tinyland-inc/picowarden/pkg/session"
)

func modeFromChoice(s string) (dispatch.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1":
		return dispatch.ModePublic, nil
	case "2":
		return dispatch.ModePrivate, nil
	default:
		return dispatch.ParseMode(s)
	}
}

func (b *builtins) mode(ctx context.Context, req *commands.Request) error {
	if len(req.Args) > 0 {
		m, err := modeFromChoice(req.Args[0])
		if err != nil {
			return req.Reply(ctx, fmt.Sprintf("Usage: %smode [public|private]", b.prefix()))
		}
		return b.applyMode(ctx, req, m)
	}

	b.Sessions.Start(req.ChatID, session.KindModeChoice, nil, b.SessionTTL)
	return req.Reply(ctx, fmt.Sprintf(
		"Current mode: *%s*\nReply with a number:\n1. public (everyone can use the bot)\n2. private (only owner and admins)",
		b.Dispatcher.Mode()))
}

// resumeMode only accepts the answer from the owner. Anyone else answering
// puts the question back.
func (b *builtins) resumeMode(ctx context.Context, req *commands.Request, payload any) error {
	if !req.Verdict.IsOwner {
		b.Sessions.Start(req.ChatID, session.KindModeChoice, payload, b.SessionTTL)
		return nil
	}
	m, err := modeFromChoice(req.ArgString())
	if err != nil {
		return err
	}
	return b.applyMode(ctx, req, m)
}

func (b *builtins) applyMode(ctx context.Context, req *commands.Request, m dispatch.Mode) error {
	if b.Settings != nil {
		if err := b.Settings.Save(ctx, ModeKey, string(m)); err != nil {
			return fmt.Errorf("save mode: %w", err)
		}
	}
	b.Dispatcher.SetMode(m)
	return req.Reply(ctx, fmt.Sprintf("✅ Bot mode is now *%s*.", m))
}
