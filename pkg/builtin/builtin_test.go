package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/commands"
	"github.com/tinyland-inc/picowarden/pkg/dispatch"
	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/moderation"
	"github.com/tinyland-inc/picowarden/pkg/session"
	"github.com/tinyland-inc/picowarden/pkg/settings"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/transporttest"
)

const (
	owner    = "15550000001"
	admin    = "15550000002"
	stranger = "15550000099"
	groupID  = "group-1"
)

type env struct {
	fake     *transporttest.Fake
	store    *settings.FileStore
	repo     *moderation.Repository
	swear    *moderation.ProfanityInspector
	sessions *session.Store
	registry *commands.Registry
	d        *dispatch.Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fake := transporttest.New()
	fake.Members[groupID] = []transport.Member{{ID: admin, IsAdmin: true}, {ID: stranger}}
	store := settings.NewMemoryStore()
	resolver := identity.NewResolver(identity.Config{Owner: owner, SignificantDigits: 10}, fake)
	repo := moderation.NewRepository(store, moderation.DefaultGroupSettings())
	swear := moderation.NewProfanityInspector(store, 10)
	pipeline := moderation.NewPipeline(moderation.Options{
		Repository: repo,
		Inspectors: []moderation.Inspector{moderation.NewSpamInspector(10), swear, moderation.NewLinkInspector()},
		Moderator:  fake,
		Sender:     fake,
		Same:       resolver.Same,
	})
	e := &env{
		fake:     fake,
		store:    store,
		repo:     repo,
		swear:    swear,
		sessions: session.NewStore(),
		registry: commands.NewRegistry(),
	}
	e.d = dispatch.New(dispatch.Deps{
		Bus:        bus.NewMessageBus(),
		Transport:  fake,
		Registry:   e.registry,
		Sessions:   e.sessions,
		Identity:   resolver,
		Moderation: pipeline,
	}, dispatch.Options{})

	deps := Deps{
		Registry:   e.registry,
		Sessions:   e.sessions,
		Dispatcher: e.d,
		Settings:   store,
		Moderation: repo,
		Profanity:  swear,
		BotName:    "testbot",
	}
	e.registry.AddSource(Source(deps))
	report := e.registry.Reload(context.Background())
	require.Empty(t, report.Failed)
	for _, c := range Continuations(deps) {
		e.d.RegisterContinuation(c)
	}
	return e
}

func (e *env) send(ev bus.InboundEvent) string {
	before := len(e.fake.Sent())
	e.d.Dispatch(context.Background(), ev)
	e.d.Wait()
	sent := e.fake.Sent()
	if len(sent) == before {
		return ""
	}
	return sent[len(sent)-1].Content
}

func dm(sender, text string) bus.InboundEvent {
	return bus.InboundEvent{
		ChatID: sender, SenderID: sender, MessageID: "d1", Content: text,
		Kind: bus.EventMessage, Peer: bus.Peer{Kind: bus.PeerDirect, ID: sender},
	}
}

func gm(sender, text string) bus.InboundEvent {
	return bus.InboundEvent{
		ChatID: groupID, SenderID: sender, MessageID: "g1", Content: text,
		Kind: bus.EventMessage, Peer: bus.Peer{Kind: bus.PeerGroup, ID: groupID},
	}
}

func TestMode_SessionFlowPersists(t *testing.T) {
	e := newEnv(t)

	reply := e.send(dm(owner, "/mode"))
	assert.Contains(t, reply, "Current mode: *public*")
	_, pending := e.sessions.Peek(owner, session.KindModeChoice)
	assert.True(t, pending)

	reply = e.send(dm(owner, "2"))
	assert.Contains(t, reply, "private")
	assert.Equal(t, dispatch.ModePrivate, e.d.Mode())

	m, ok, err := LoadMode(context.Background(), e.store)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dispatch.ModePrivate, m)
}

func TestMode_DirectArgumentAndDenial(t *testing.T) {
	e := newEnv(t)
	assert.Contains(t, e.send(dm(stranger, "/mode private")), "Access denied")
	assert.Equal(t, dispatch.ModePublic, e.d.Mode())

	e.send(dm(owner, "/mode private"))
	assert.Equal(t, dispatch.ModePrivate, e.d.Mode())

	assert.Contains(t, e.send(dm(owner, "/mode loud")), "Usage")
}

func TestMode_OthersCannotAnswer(t *testing.T) {
	e := newEnv(t)
	ownerInGroup := gm(owner, "/mode")
	e.send(ownerInGroup)

	e.send(gm(stranger, "2"))
	assert.Equal(t, dispatch.ModePublic, e.d.Mode())
	_, pending := e.sessions.Peek(groupID, session.KindModeChoice)
	assert.True(t, pending, "question put back")

	e.send(gm(owner, "1"))
	assert.Equal(t, dispatch.ModePublic, e.d.Mode())
	_, pending = e.sessions.Peek(groupID, session.KindModeChoice)
	assert.False(t, pending)
}

func TestMenu_HidesPrivilegedCommands(t *testing.T) {
	e := newEnv(t)
	menu := e.send(dm(stranger, "/help"))
	assert.Contains(t, menu, "testbot commands")
	assert.Contains(t, menu, "/ping")
	assert.NotContains(t, menu, "/reload")
	assert.NotContains(t, menu, "/antilink")

	menu = e.send(gm(admin, "/menu"))
	assert.Contains(t, menu, "/antilink")
	assert.NotContains(t, menu, "/reload")
}

func TestAntilink_EnableThenEnforce(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.send(gm(stranger, "/antilink on")), "Access denied")
	assert.Contains(t, e.send(gm(admin, "/antilink on")), "enabled")
	assert.Contains(t, e.send(gm(admin, "/antilink action kick")), "kick")
	assert.Contains(t, e.send(gm(admin, "/antilink action ban")), "Usage")
	assert.Contains(t, e.send(gm(admin, "/antilink allow www.example.org")), "example.org")

	e.send(gm(stranger, "docs at https://example.org/page"))
	assert.Empty(t, e.fake.Removed())

	e.send(gm(stranger, "free stuff www.spam.com"))
	assert.Len(t, e.fake.Removed(), 1)
	assert.Len(t, e.fake.Deleted(), 1)
}

func TestWhitelist_ExemptsFromLinkFilter(t *testing.T) {
	e := newEnv(t)
	e.send(gm(admin, "/antilink on"))
	assert.Contains(t, e.send(gm(admin, "/whitelist add @"+stranger)), "Added 1")
	assert.Contains(t, e.send(gm(admin, "/whitelist list")), stranger)

	e.send(gm(stranger, "www.spam.com"))
	assert.Empty(t, e.fake.Deleted())

	assert.Contains(t, e.send(gm(admin, "/whitelist remove "+stranger)), "Removed 1")
	e.send(gm(stranger, "www.spam.com"))
	assert.Len(t, e.fake.Deleted(), 1)
}

func TestBadwordsAndResetwarn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.send(gm(admin, "/antiswear on"))
	assert.Contains(t, e.send(gm(admin, "/badwords add Heck darn")), "Added 2")
	assert.Contains(t, e.send(gm(admin, "/badwords")), "heck")

	e.send(gm(stranger, "oh heck"))
	n, err := e.swear.Warnings(ctx, groupID, stranger)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Contains(t, e.send(gm(admin, "/resetwarn @"+stranger)), "cleared")
	assert.Contains(t, e.send(gm(admin, "/resetwarn "+stranger)), "no warnings")
}

func TestAntispam_Threshold(t *testing.T) {
	e := newEnv(t)
	assert.Contains(t, e.send(gm(admin, "/antispam threshold 3")), "3 messages")
	assert.Contains(t, e.send(gm(admin, "/antispam threshold x")), "at least 2")
	gs, err := e.repo.Get(context.Background(), groupID)
	require.NoError(t, err)
	assert.Equal(t, 3, gs.SpamThreshold)
}

func TestSettings_GroupOnly(t *testing.T) {
	e := newEnv(t)
	assert.Contains(t, e.send(dm(owner, "/settings")), "only be used in groups")
	out := e.send(gm(admin, "/settings"))
	assert.Contains(t, out, "Anti-spam: off")
	assert.Contains(t, out, "Bot mode: public")
}

func TestCancelAndReload(t *testing.T) {
	e := newEnv(t)
	e.sessions.Start(owner, session.KindSizeChoice, nil, time.Minute)
	assert.Contains(t, e.send(dm(owner, "/cancel")), "Cancelled 1")
	assert.Contains(t, e.send(dm(owner, "/cancel")), "Nothing")

	assert.Contains(t, e.send(dm(owner, "/reload")), "Reloaded 12")
	assert.Contains(t, e.send(dm(owner, "/ping")), "pong")
}
