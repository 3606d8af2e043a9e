package internal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/config"
	"github.com/tinyland-inc/picowarden/pkg/dispatch"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/transporttest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Bot.Owner = "15550001111"
	cfg.Settings.Backend = "memory"
	cfg.Commands.File = filepath.Join(t.TempDir(), "commands.json")
	return cfg
}

func withFake(fake *transporttest.Fake) TransportFactory {
	return func(*bus.MessageBus) ([]transport.Transport, error) {
		return []transport.Transport{fake}, nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestGroupDefaults(t *testing.T) {
	g, err := GroupDefaults(config.ModerationConfig{
		SpamThreshold:   7,
		SpamAction:      "kick",
		ProfanityAction: "warn",
		Words:           []string{"darn"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, g.SpamThreshold)
	assert.Equal(t, moderation.ActionKick, g.Spam.Action)
	assert.Equal(t, moderation.ActionWarn, g.Profanity.Action)
	assert.Equal(t, moderation.ActionDelete, g.Links.Action)
	assert.Equal(t, []string{"darn"}, g.Words)
	assert.False(t, g.Spam.Enabled)

	_, err = GroupDefaults(config.ModerationConfig{LinkAction: "explode"})
	assert.Error(t, err)
}

func TestNewApp_NoTransports(t *testing.T) {
	_, err := NewApp(context.Background(), testConfig(t), func(*bus.MessageBus) ([]transport.Transport, error) {
		return nil, nil
	})
	assert.ErrorContains(t, err, "no transports enabled")
}

func TestApp_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Commands.File,
		[]byte(`{"commands":[{"name":"rules","reply":"Be nice, {sender}."}]}`), 0o600))

	fake := transporttest.New()
	ctx := context.Background()
	app, err := NewApp(ctx, cfg, withFake(fake))
	require.NoError(t, err)

	_, ok := app.Registry.Lookup("rules")
	assert.True(t, ok, "file commands load with the built-ins")
	_, ok = app.Registry.Lookup("menu")
	assert.True(t, ok)

	jobs := map[string]bool{}
	for _, j := range app.Scheduler.Jobs() {
		jobs[j.Name] = true
	}
	assert.True(t, jobs["session-sweep"])
	assert.True(t, jobs["spam-sweep"])
	assert.True(t, jobs["commands-reload"])
	assert.True(t, jobs["settings-flush"], "memory store flushes are no-ops but still scheduled")

	require.NoError(t, app.Start(ctx))

	require.NoError(t, app.Bus.PublishInbound(ctx, bus.InboundEvent{
		Channel:    "fake",
		ChatID:     "15550002222",
		SenderID:   "15550002222",
		SenderName: "Ann",
		MessageID:  "1",
		Content:    "/rules",
		Kind:       bus.EventMessage,
		Peer:       bus.Peer{Kind: bus.PeerDirect, ID: "15550002222"},
	}))
	waitFor(t, func() bool { return len(fake.Sent()) == 1 })
	assert.Equal(t, "Be nice, Ann.", fake.Sent()[0].Content)

	require.NoError(t, app.Stop(context.Background()))
	assert.False(t, fake.IsRunning())
}

func TestApp_ModePersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.Backend = "file"
	cfg.Settings.Path = filepath.Join(t.TempDir(), "settings.json")
	ctx := context.Background()

	fake := transporttest.New()
	app, err := NewApp(ctx, cfg, withFake(fake))
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))

	owner := bus.InboundEvent{
		Channel:  "fake",
		ChatID:   "15550001111",
		SenderID: "15550001111",
		Content:  "/mode private",
		Kind:     bus.EventMessage,
		Peer:     bus.Peer{Kind: bus.PeerDirect, ID: "15550001111"},
	}
	require.NoError(t, app.Bus.PublishInbound(ctx, owner))
	waitFor(t, func() bool {
		for _, s := range fake.Sent() {
			if strings.Contains(strings.ToLower(s.Content), "private") {
				return true
			}
		}
		return false
	})
	require.NoError(t, app.Stop(ctx))

	again, err := NewApp(ctx, cfg, withFake(transporttest.New()))
	require.NoError(t, err)
	defer func() { _ = again.Settings.Close() }()
	assert.Equal(t, dispatch.ModePrivate, again.Dispatcher.Mode())
}

func TestGetConfigPath(t *testing.T) {
	ConfigPath = "/tmp/custom.json"
	defer func() { ConfigPath = "" }()
	assert.Equal(t, "/tmp/custom.json", GetConfigPath())

	ConfigPath = ""
	assert.True(t, strings.HasSuffix(GetConfigPath(), filepath.Join(".picowarden", "config.json")))
}
