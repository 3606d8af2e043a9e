package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/builtin"
	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/config"
	"github.com/tinyland-inc/picowarden/pkg/dispatch"
	"github.com/tinyland-inc/picowarden/pkg/fallback"
	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
	"github.com/tinyland-inc/picowarden/pkg/scheduler"
	"github.com/tinyland-inc/picowarden/pkg/session"
	"github.com/tinyland-inc/picowarden/pkg/settings"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

// TransportFactory builds the platform transports publishing to mb.
type TransportFactory func(mb *bus.MessageBus) ([]transport.Transport, error)

// App is the fully wired bot: transports, dispatcher and background jobs.
type App struct {
	Config     *config.Config
	Bus        *bus.MessageBus
	Transport  *transport.Multi
	Settings   settings.Store
	Registry   *commands.Registry
	Sessions   *session.Store
	Identity   *identity.Resolver
	Spam       *moderation.SpamInspector
	Moderation *moderation.Pipeline
	Dispatcher *dispatch.Dispatcher
	Scheduler  *scheduler.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GroupDefaults turns the moderation section into the settings a group
// starts with before any admin changes them.
func GroupDefaults(cfg config.ModerationConfig) (moderation.GroupSettings, error) {
	g := moderation.DefaultGroupSettings()
	var errs []error
	parse := func(s string, into *moderation.Action) {
		if s == "" {
			return
		}
		a, err := moderation.ParseAction(s)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*into = a
	}
	parse(cfg.SpamAction, &g.Spam.Action)
	parse(cfg.ProfanityAction, &g.Profanity.Action)
	parse(cfg.LinkAction, &g.Links.Action)
	if cfg.SpamThreshold > 0 {
		g.SpamThreshold = cfg.SpamThreshold
	}
	if cfg.SpamWindowSeconds > 0 {
		g.SpamWindowSeconds = cfg.SpamWindowSeconds
	}
	if cfg.MuteMinutes > 0 {
		g.MuteMinutes = cfg.MuteMinutes
	}
	if cfg.WarnLimit > 0 {
		g.WarnLimit = cfg.WarnLimit
	}
	g.Words = append([]string(nil), cfg.Words...)
	return g, errors.Join(errs...)
}

// NewApp wires every component from cfg. Nothing runs until Start.
func NewApp(ctx context.Context, cfg *config.Config, transports TransportFactory) (*App, error) {
	store, err := settings.Open(ctx, settings.Options{
		Backend:       cfg.Settings.Backend,
		Path:          cfg.SettingsPath(),
		RedisAddr:     cfg.Settings.RedisAddr,
		RedisPassword: cfg.Settings.RedisPassword,
		RedisDB:       cfg.Settings.RedisDB,
		RedisPrefix:   cfg.Settings.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	a := &App{Config: cfg, Settings: store, Bus: bus.NewMessageBus()}
	if err := a.wire(ctx, transports); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, transports TransportFactory) error {
	cfg := a.Config

	ts, err := transports(a.Bus)
	if err != nil {
		return fmt.Errorf("create transports: %w", err)
	}
	if len(ts) == 0 {
		return errors.New("no transports enabled")
	}
	a.Transport = transport.NewMulti(ts...)

	a.Identity = identity.NewResolver(identity.Config{
		Owner:             string(cfg.Bot.Owner),
		Admins:            cfg.Bot.Admins,
		SignificantDigits: cfg.Bot.SignificantDigits,
		TTL:               seconds(cfg.Identity.CacheTTLSeconds),
		MaxEntries:        cfg.Identity.MaxEntries,
	}, a.Transport)

	defaults, err := GroupDefaults(cfg.Moderation)
	if err != nil {
		return err
	}
	repo := moderation.NewRepository(a.Settings, defaults)
	a.Spam = moderation.NewSpamInspector(cfg.Bot.SignificantDigits)
	profanity := moderation.NewProfanityInspector(a.Settings, cfg.Bot.SignificantDigits)
	a.Moderation = moderation.NewPipeline(moderation.Options{
		Repository:      repo,
		Inspectors:      []moderation.Inspector{a.Spam, profanity, moderation.NewLinkInspector()},
		Moderator:       a.Transport,
		Sender:          a.Transport,
		Same:            a.Identity.Same,
		Admins:          a.Identity,
		FreshAdminCheck: cfg.Moderation.FreshAdminCheck,
	})

	mode, err := dispatch.ParseMode(cfg.Bot.Mode)
	if err != nil {
		return err
	}
	a.Registry = commands.NewRegistry()
	a.Sessions = session.NewStore()
	deps := dispatch.Deps{
		Bus:        a.Bus,
		Transport:  a.Transport,
		Registry:   a.Registry,
		Sessions:   a.Sessions,
		Identity:   a.Identity,
		Moderation: a.Moderation,
		Status:     statusHandler,
	}
	if cfg.Fallback.Enabled {
		responder, err := fallback.New(fallback.Config{
			Provider:     cfg.Fallback.Provider,
			Model:        cfg.Fallback.Model,
			APIKey:       cfg.Fallback.APIKey,
			APIBase:      cfg.Fallback.APIBase,
			SystemPrompt: cfg.Fallback.SystemPrompt,
			MaxTokens:    cfg.Fallback.MaxTokens,
			HistoryTurns: cfg.Fallback.HistoryTurns,
		})
		if err != nil {
			return err
		}
		deps.Fallback = responder
	}
	a.Dispatcher = dispatch.New(deps, dispatch.Options{
		Prefixes: cfg.Bot.Prefixes,
		Mode:     mode,
		Reactions: dispatch.Reactions{
			Enabled:     cfg.Reactions.Enabled,
			Probability: cfg.Reactions.Probability,
			Emojis:      cfg.Reactions.Emojis,
		},
	})

	bdeps := builtin.Deps{
		Registry:   a.Registry,
		Sessions:   a.Sessions,
		Dispatcher: a.Dispatcher,
		Settings:   a.Settings,
		Moderation: repo,
		Profanity:  profanity,
		BotName:    cfg.Bot.Name,
		SessionTTL: seconds(cfg.Session.TTLSeconds),
	}
	a.Registry.AddSource(builtin.Source(bdeps))
	if path := cfg.CommandsFile(); path != "" {
		a.Registry.AddSource(commands.NewFileSource(path))
	}
	for _, c := range builtin.Continuations(bdeps) {
		a.Dispatcher.RegisterContinuation(c)
	}

	if saved, ok, err := builtin.LoadMode(ctx, a.Settings); err != nil {
		logger.WarnCF("app", "Could not load saved bot mode", map[string]any{"error": err.Error()})
	} else if ok {
		a.Dispatcher.SetMode(saved)
	}

	report := a.Registry.Reload(ctx)
	for _, f := range report.Failed {
		logger.WarnCF("app", "Command not loaded", map[string]any{"error": f.Error()})
	}

	return a.schedule()
}

func (a *App) schedule() error {
	cfg := a.Config
	a.Scheduler = scheduler.New()
	jobs := []scheduler.Job{
		{Name: "session-sweep", Spec: cfg.Session.SweepSchedule, Run: func(context.Context) error {
			a.Sessions.Sweep()
			return nil
		}},
		{Name: "spam-sweep", Spec: cfg.Moderation.SweepSchedule, Run: func(context.Context) error {
			a.Spam.Sweep()
			return nil
		}},
		{Name: "commands-reload", Spec: cfg.Commands.ReloadSchedule, Run: func(ctx context.Context) error {
			report := a.Registry.Reload(ctx)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d command(s) failed to load", len(report.Failed))
			}
			return nil
		}},
	}
	if f, ok := a.Settings.(settings.Flusher); ok {
		jobs = append(jobs, scheduler.Job{Name: "settings-flush", Spec: cfg.Settings.FlushSchedule, Run: func(context.Context) error {
			return f.Flush()
		}})
	}
	for _, job := range jobs {
		if job.Spec == "" {
			continue
		}
		if err := a.Scheduler.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// statusHandler receives status broadcasts. They carry nothing to act on
// beyond being seen.
func statusHandler(_ context.Context, ev bus.InboundEvent) {
	logger.DebugCF("app", "Status broadcast seen", map[string]any{
		"channel": ev.Channel,
		"sender":  ev.EffectiveSender(),
	})
}

// Start connects the transports and begins dispatching and scheduling.
func (a *App) Start(ctx context.Context) error {
	if err := a.Transport.Start(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Scheduler.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.Dispatcher.Run(runCtx)
	}()
	logger.InfoCF("app", "Bot started", map[string]any{
		"transports": a.Transport.Names(),
		"commands":   a.Registry.Len(),
		"mode":       string(a.Dispatcher.Mode()),
	})
	return nil
}

// Stop shuts down in reverse order and flushes settings. It is safe to call
// after a failed Start.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	a.Scheduler.Stop()
	if err := a.Transport.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Bus.Close()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.Dispatcher.Wait()
	if err := a.Settings.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close settings: %w", err))
	}
	logger.InfoC("app", "Bot stopped")
	return errors.Join(errs...)
}
