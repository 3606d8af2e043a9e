// Package dispatch routes inbound chat events to commands, pending
// sessions, the conversational fallback or an ambient reaction, and kicks
// off moderation for group messages.
package dispatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/fallback"
	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
	"github.com/tinyland-inc/picowarden/pkg/session"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

type Mode string

const (
	ModePublic  Mode = "public"
	ModePrivate Mode = "private"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePublic, ModePrivate:
		return m, nil
	default:
		return "", fmt.Errorf("unknown bot mode %q", s)
	}
}

type Reactions struct {
	Enabled     bool
	Probability float64
	Emojis      []string
}

type Options struct {
	Prefixes  []string
	Mode      Mode
	Reactions Reactions
}

// Outcome names the route one event took.
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeStatus   Outcome = "status"
	OutcomeCommand  Outcome = "command"
	OutcomeDenied   Outcome = "denied"
	OutcomeSilenced Outcome = "silenced"
	OutcomeUnknown  Outcome = "unknown"
	OutcomeSession  Outcome = "session"
	OutcomeFallback Outcome = "fallback"
	OutcomeReaction Outcome = "reaction"
	OutcomeNone     Outcome = "none"
)

// Continuation resumes a multi-step flow when a chat answers a pending
// session of Kind. Accept decides whether the text is an answer.
type Continuation struct {
	Kind   session.Kind
	Accept session.Predicate
	Resume func(ctx context.Context, req *commands.Request, payload any) error
}

// StatusHandler receives status broadcasts. It runs in the background.
type StatusHandler func(ctx context.Context, ev bus.InboundEvent)

type Deps struct {
	Bus        *bus.MessageBus
	Transport  transport.Transport
	Registry   *commands.Registry
	Sessions   *session.Store
	Identity   *identity.Resolver
	Moderation *moderation.Pipeline
	Fallback   fallback.Responder
	Status     StatusHandler
}

type Dispatcher struct {
	deps Deps
	opts Options

	mu            sync.RWMutex
	mode          Mode
	continuations []Continuation

	wg     sync.WaitGroup
	random func() float64
}

func New(deps Deps, opts Options) *Dispatcher {
	if len(opts.Prefixes) == 0 {
		opts.Prefixes = []string{"/"}
	}
	if opts.Mode == "" {
		opts.Mode = ModePublic
	}
	return &Dispatcher{
		deps:   deps,
		opts:   opts,
		mode:   opts.Mode,
		random: rand.Float64,
	}
}

func (d *Dispatcher) SetMode(m Mode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
	logger.InfoCF("dispatch", "Bot mode changed", map[string]any{"mode": string(m)})
}

func (d *Dispatcher) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Prefix returns the primary command prefix, for help texts.
func (d *Dispatcher) Prefix() string {
	return d.opts.Prefixes[0]
}

// RegisterContinuation adds a session kind. Kinds get first refusal in
// registration order.
func (d *Dispatcher) RegisterContinuation(c Continuation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.continuations = append(d.continuations, c)
}

// Run consumes inbound batches until ctx is done or the bus closes. Events
// of a batch are dispatched one at a time in order.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.InfoC("dispatch", "Dispatcher started")
	for {
		batch, ok := d.deps.Bus.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("dispatch", "Dispatcher stopped")
			return ctx.Err()
		}
		for _, ev := range batch {
			d.Dispatch(ctx, ev)
		}
	}
}

// Wait blocks until all background work started by Dispatch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	if d.deps.Moderation != nil {
		d.deps.Moderation.Wait()
	}
}

type classified struct {
	command bool
	button  bool
	name    string
	args    []string
	text    string
}

func (d *Dispatcher) classify(ev bus.InboundEvent) classified {
	if ev.Kind == bus.EventButton {
		text := ev.ButtonID
		if text == "" {
			text = ev.Content
		}
		text = strings.TrimSpace(text)
		for _, p := range d.opts.Prefixes {
			if rest, ok := strings.CutPrefix(text, p); ok {
				text = rest
				break
			}
		}
		c := classified{button: true, text: text}
		if fields := strings.Fields(text); len(fields) > 0 {
			c.name = commandName(fields[0])
			c.args = fields[1:]
		}
		return c
	}

	text := strings.TrimSpace(ev.Content)
	for _, p := range d.opts.Prefixes {
		rest, ok := strings.CutPrefix(text, p)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 || strings.HasPrefix(rest, " ") {
			break
		}
		return classified{command: true, name: commandName(fields[0]), args: fields[1:], text: text}
	}
	return classified{text: text}
}

// commandName lower-cases and drops a "@botname" suffix.
func commandName(s string) string {
	if i := strings.IndexByte(s, '@'); i > 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Dispatch routes a single event. Handler work runs in the background; the
// returned Outcome says which route was taken.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.InboundEvent) Outcome {
	if obs, ok := d.deps.Transport.(transport.EventObserver); ok {
		obs.Observe(ev)
	}

	if ev.Kind == bus.EventStatus {
		if d.deps.Status != nil {
			d.spawn(ctx, "status", ev, func(ctx context.Context) error {
				d.deps.Status(ctx, ev)
				return nil
			}, nil)
		}
		return OutcomeStatus
	}

	c := d.classify(ev)

	var verdict identity.Verdict
	if ev.IsFromSelf {
		if !c.command {
			return OutcomeIgnored
		}
		verdict = identity.Verdict{IsOwner: true, IsAdmin: true}
	} else {
		verdict = d.deps.Identity.Resolve(ctx, ev.ChatID, ev.EffectiveSender(), ev.IsGroup())
		if ev.IsGroup() && !c.button && d.deps.Moderation != nil {
			d.deps.Moderation.Go(ctx, ev, verdict)
		}
	}

	if c.command || (c.button && c.name != "") {
		if desc, ok := d.deps.Registry.Lookup(c.name); ok {
			return d.runCommand(ctx, ev, verdict, desc, c)
		}
		if c.command {
			return d.unknownCommand(ctx, ev, verdict, c.name)
		}
	}

	if d.continueSession(ctx, ev, verdict, c.text) {
		return OutcomeSession
	}

	if d.fallbackEligible(ev, verdict, c.text) {
		d.runFallback(ctx, ev, c.text)
		return OutcomeFallback
	}

	if d.react(ctx, ev) {
		return OutcomeReaction
	}
	return OutcomeNone
}

func (d *Dispatcher) request(ev bus.InboundEvent, v identity.Verdict, name string, args []string) *commands.Request {
	chatID := ev.ChatID
	return &commands.Request{
		ChatID:     chatID,
		Command:    name,
		Args:       args,
		Event:      ev,
		Verdict:    v,
		Privileged: v.Privileged(),
		Reply: func(ctx context.Context, content string) error {
			_, err := d.deps.Transport.SendMessage(ctx, chatID, content)
			return err
		},
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, ev bus.InboundEvent, v identity.Verdict, desc commands.Descriptor, c classified) Outcome {
	if desc.GroupOnly && !ev.IsGroup() {
		return d.deny(ctx, ev, v, fmt.Sprintf("%s%s can only be used in groups.", d.Prefix(), desc.Name))
	}
	if !desc.Allows(v) {
		role := "an admin"
		if desc.RequiresOwner {
			role = "the owner"
		}
		return d.deny(ctx, ev, v, fmt.Sprintf("⛔ Access denied: %s%s is reserved for %s.", d.Prefix(), desc.Name, role))
	}

	req := d.request(ev, v, c.name, c.args)
	logger.InfoCF("dispatch", "Executing command", map[string]any{
		"command": desc.Name,
		"chat_id": ev.ChatID,
		"sender":  ev.EffectiveSender(),
	})
	d.spawn(ctx, "command", ev, func(ctx context.Context) error {
		return desc.Handler(ctx, req)
	}, func(ctx context.Context, err error) {
		d.reply(ctx, ev.ChatID, fmt.Sprintf("❌ %s%s failed: %v", d.Prefix(), desc.Name, err))
	})
	return OutcomeCommand
}

// deny answers a routing failure, or stays silent for unprivileged senders
// in private mode.
func (d *Dispatcher) deny(ctx context.Context, ev bus.InboundEvent, v identity.Verdict, msg string) Outcome {
	if d.Mode() == ModePrivate && !v.Privileged() {
		logger.DebugCF("dispatch", "Denied silently in private mode", map[string]any{
			"chat_id": ev.ChatID,
			"sender":  ev.EffectiveSender(),
		})
		return OutcomeSilenced
	}
	d.reply(ctx, ev.ChatID, msg)
	return OutcomeDenied
}

func (d *Dispatcher) unknownCommand(ctx context.Context, ev bus.InboundEvent, v identity.Verdict, name string) Outcome {
	if d.Mode() == ModePrivate && !v.Privileged() {
		return OutcomeSilenced
	}
	d.reply(ctx, ev.ChatID, fmt.Sprintf("Unknown command %s%s. Send %smenu for the list.", d.Prefix(), name, d.Prefix()))
	return OutcomeUnknown
}

func (d *Dispatcher) continueSession(ctx context.Context, ev bus.InboundEvent, v identity.Verdict, text string) bool {
	if d.deps.Sessions == nil {
		return false
	}
	d.mu.RLock()
	conts := append([]Continuation(nil), d.continuations...)
	d.mu.RUnlock()

	for _, cont := range conts {
		payload, ok := d.deps.Sessions.TryConsume(ev.ChatID, cont.Kind, text, cont.Accept)
		if !ok {
			continue
		}
		req := d.request(ev, v, "", strings.Fields(text))
		logger.DebugCF("dispatch", "Session continued", map[string]any{
			"chat_id": ev.ChatID,
			"kind":    string(cont.Kind),
		})
		d.spawn(ctx, "session", ev, func(ctx context.Context) error {
			return cont.Resume(ctx, req, payload)
		}, func(ctx context.Context, err error) {
			d.reply(ctx, ev.ChatID, fmt.Sprintf("❌ %v", err))
		})
		return true
	}
	return false
}

func (d *Dispatcher) fallbackEligible(ev bus.InboundEvent, v identity.Verdict, text string) bool {
	if d.deps.Fallback == nil || text == "" {
		return false
	}
	if d.Mode() == ModePrivate && !v.Privileged() {
		return false
	}
	if ev.IsGroup() {
		return ev.MentionsSelf || ev.ReplyToSelf
	}
	return true
}

func (d *Dispatcher) runFallback(ctx context.Context, ev bus.InboundEvent, text string) {
	req := fallback.Request{
		ChatID:     ev.ChatID,
		SenderID:   ev.EffectiveSender(),
		SenderName: ev.SenderName,
		Text:       text,
		IsGroup:    ev.IsGroup(),
	}
	d.spawn(ctx, "fallback", ev, func(ctx context.Context) error {
		reply, err := d.deps.Fallback.Respond(ctx, req)
		if err != nil {
			return err
		}
		if reply != "" {
			d.reply(ctx, ev.ChatID, reply)
		}
		return nil
	}, nil)
}

func (d *Dispatcher) react(ctx context.Context, ev bus.InboundEvent) bool {
	r := d.opts.Reactions
	if !r.Enabled || len(r.Emojis) == 0 || ev.MessageID == "" || ev.IsFromSelf {
		return false
	}
	if d.random() >= r.Probability {
		return false
	}
	emoji := r.Emojis[int(d.random()*float64(len(r.Emojis)))%len(r.Emojis)]
	d.spawn(ctx, "reaction", ev, func(ctx context.Context) error {
		return d.deps.Transport.React(ctx, ev.ChatID, ev.MessageID, emoji)
	}, nil)
	return true
}

func (d *Dispatcher) reply(ctx context.Context, chatID, content string) {
	if _, err := d.deps.Transport.SendMessage(ctx, chatID, content); err != nil {
		logger.ErrorCF("dispatch", "Failed to send reply", map[string]any{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// spawn runs fn in the background. Errors and panics are logged and, when
// onErr is set, reported to the chat.
func (d *Dispatcher) spawn(ctx context.Context, kind string, ev bus.InboundEvent, fn func(context.Context) error, onErr func(context.Context, error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := safeCall(ctx, fn)
		if err == nil {
			return
		}
		logger.ErrorCF("dispatch", "Background "+kind+" failed", map[string]any{
			"chat_id": ev.ChatID,
			"sender":  ev.EffectiveSender(),
			"error":   err.Error(),
		})
		if onErr != nil {
			onErr(ctx, err)
		}
	}()
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
