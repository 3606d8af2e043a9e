package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

// AdminChecker answers live group-admin questions. *identity.Resolver
// implements it.
type AdminChecker interface {
	IsGroupAdmin(ctx context.Context, groupID, senderID string, fresh bool) bool
}

type Options struct {
	Repository *Repository
	Inspectors []Inspector
	Moderator  transport.Moderator
	Sender     transport.Sender
	Same       func(a, b string) bool
	// Admins is consulted with fresh=true before every run when
	// FreshAdminCheck is set, instead of trusting the cached verdict.
	Admins          AdminChecker
	FreshAdminCheck bool
}

// Pipeline runs every inspector on a group message and enforces each
// non-noop verdict on its own.
type Pipeline struct {
	opts Options
	wg   sync.WaitGroup
}

func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

func (p *Pipeline) exempt(ctx context.Context, ev bus.InboundEvent, v identity.Verdict) bool {
	if ev.IsFromSelf || v.IsOwner {
		return true
	}
	if p.opts.FreshAdminCheck && p.opts.Admins != nil {
		return p.opts.Admins.IsGroupAdmin(ctx, ev.ChatID, ev.EffectiveSender(), true)
	}
	return v.IsGroupAdmin
}

// RunAll inspects ev concurrently and waits for all inspectors and their
// enforcement. It returns the verdicts in inspector order.
func (p *Pipeline) RunAll(ctx context.Context, ev bus.InboundEvent, v identity.Verdict) []Verdict {
	if !ev.IsGroup() || p.exempt(ctx, ev, v) {
		return nil
	}
	gs, err := p.opts.Repository.Get(ctx, ev.ChatID)
	if err != nil {
		logger.ErrorCF("moderation", "Failed to load group settings", map[string]any{
			"group": ev.ChatID,
			"error": err.Error(),
		})
		return nil
	}
	in := Inspection{Event: ev, Settings: gs, Same: p.opts.Same}

	verdicts := make([]Verdict, len(p.opts.Inspectors))
	var wg sync.WaitGroup
	for i, insp := range p.opts.Inspectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdicts[i] = p.runOne(ctx, insp, in)
		}()
	}
	wg.Wait()
	return verdicts
}

func (p *Pipeline) runOne(ctx context.Context, insp Inspector, in Inspection) (v Verdict) {
	fields := map[string]any{
		"inspector": insp.Name(),
		"group":     in.Event.ChatID,
		"sender":    in.Event.EffectiveSender(),
	}
	defer func() {
		if r := recover(); r != nil {
			fields["panic"] = fmt.Sprint(r)
			logger.ErrorCF("moderation", "Inspector panicked", fields)
			v = Noop(insp.Name())
		}
	}()

	v, err := insp.Inspect(ctx, in)
	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF("moderation", "Inspector failed", fields)
		return Noop(insp.Name())
	}
	if v.IsNoop() {
		return v
	}
	fields["action"] = string(v.Action)
	fields["reason"] = v.Reason
	logger.InfoCF("moderation", "Moderation verdict", fields)
	if err := p.enforce(ctx, in.Event, v); err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF("moderation", "Enforcement failed", fields)
	}
	return v
}

// Go starts RunAll in the background. Wait blocks until every started run
// has finished.
func (p *Pipeline) Go(ctx context.Context, ev bus.InboundEvent, v identity.Verdict) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.RunAll(ctx, ev, v)
	}()
}

func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) enforce(ctx context.Context, ev bus.InboundEvent, v Verdict) error {
	sender := ev.EffectiveSender()
	name := ev.SenderName
	if name == "" {
		name = sender
	}
	var errs []error

	if v.DeleteMessage || v.Action == ActionDelete {
		if err := p.opts.Moderator.DeleteMessage(ctx, ev.ChatID, ev.MessageID, sender); err != nil {
			errs = append(errs, fmt.Errorf("delete: %w", err))
		}
	}

	var notice string
	switch v.Action {
	case ActionWarn:
		notice = fmt.Sprintf("⚠️ %s: %s", name, v.Reason)
	case ActionMute:
		if err := p.opts.Moderator.MuteMember(ctx, ev.ChatID, sender, v.Duration); err != nil {
			errs = append(errs, fmt.Errorf("mute: %w", err))
		} else {
			notice = fmt.Sprintf("🔇 %s muted for %s: %s", name, v.Duration, v.Reason)
		}
	case ActionKick:
		if err := p.opts.Moderator.RemoveMember(ctx, ev.ChatID, sender); err != nil {
			errs = append(errs, fmt.Errorf("kick: %w", err))
		} else {
			notice = fmt.Sprintf("🚫 %s removed: %s", name, v.Reason)
		}
	}
	if notice != "" && p.opts.Sender != nil {
		if _, err := p.opts.Sender.SendMessage(ctx, ev.ChatID, notice); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}
	return errors.Join(errs...)
}
