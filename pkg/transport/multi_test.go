package transport_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/transporttest"
)

type namedFake struct {
	*transporttest.Fake
	name string
}

func (n namedFake) Name() string { return n.name }

func TestMulti_SingleTransportRoutesEverything(t *testing.T) {
	f := transporttest.New()
	m := transport.NewMulti(f)

	_, err := m.SendMessage(context.Background(), "unknown-chat", "hello")
	require.NoError(t, err)
	assert.Len(t, f.Sent(), 1)
}

func TestMulti_RoutesByObservedChannel(t *testing.T) {
	tg := namedFake{transporttest.New(), "telegram"}
	dc := namedFake{transporttest.New(), "discord"}
	m := transport.NewMulti(tg, dc)

	_, err := m.SendMessage(context.Background(), "chat-1", "x")
	assert.Error(t, err, "unrouted chat should fail")

	m.Observe(bus.InboundEvent{Channel: "discord", ChatID: "chat-1", SenderID: "u1"})
	_, err = m.SendMessage(context.Background(), "chat-1", "x")
	require.NoError(t, err)
	assert.Len(t, dc.Sent(), 1)
	assert.Empty(t, tg.Sent())

	require.NoError(t, m.RemoveMember(context.Background(), "chat-1", "u1"))
	assert.Len(t, dc.Removed(), 1)
	assert.ElementsMatch(t, []string{"telegram", "discord"}, m.Names())
}

func TestMulti_RoutesAreBounded(t *testing.T) {
	tg := namedFake{transporttest.New(), "telegram"}
	dc := namedFake{transporttest.New(), "discord"}
	m := transport.NewMulti(tg, dc)
	m.SetMaxRoutes(4)

	for i := range 10 {
		id := fmt.Sprintf("chat-%d", i)
		m.Observe(bus.InboundEvent{Channel: "telegram", ChatID: id, SenderID: id})
	}
	assert.Equal(t, 4, m.RouteCount())

	_, err := m.SendMessage(context.Background(), "chat-0", "x")
	assert.Error(t, err, "oldest route was evicted")
	_, err = m.SendMessage(context.Background(), "chat-9", "x")
	require.NoError(t, err)

	m.Observe(bus.InboundEvent{Channel: "discord", ChatID: "chat-0"})
	_, err = m.SendMessage(context.Background(), "chat-0", "x")
	require.NoError(t, err)
	assert.Len(t, dc.Sent(), 1)
	assert.Equal(t, 4, m.RouteCount())
}

func TestMulti_SingleTransportKeepsNoRoutes(t *testing.T) {
	m := transport.NewMulti(transporttest.New())
	m.Observe(bus.InboundEvent{Channel: "fake", ChatID: "c1", SenderID: "u1"})
	assert.Equal(t, 0, m.RouteCount())
}

func TestMulti_GetGroupMemberUnsupported(t *testing.T) {
	m := transport.NewMulti(transporttest.New())
	_, err := m.GetGroupMember(context.Background(), "g1", "u1")
	assert.ErrorIs(t, err, transport.ErrUnsupported)
}
