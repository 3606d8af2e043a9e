package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
)

// fakeBridge answers requests and records them. write sends any frame to the
// connected client.
type fakeBridge struct {
	t      *testing.T
	mu     sync.Mutex
	conn   *websocket.Conn
	calls  []frame
	ready  chan struct{}
	server *httptest.Server
}

func newFakeBridge(t *testing.T) *fakeBridge {
	fb := &fakeBridge{t: t, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	fb.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conn = conn
		fb.mu.Unlock()
		close(fb.ready)
		fb.serve(conn)
	}))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBridge) url() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http")
}

func (fb *fakeBridge) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Type   string          `json:"type"`
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		fb.mu.Lock()
		fb.calls = append(fb.calls, frame{Type: req.Type, ID: req.ID, Method: req.Method, Payload: req.Params})
		fb.mu.Unlock()

		resp := map[string]any{"type": "res", "id": req.ID, "ok": true}
		switch req.Method {
		case "whoami":
			resp["payload"] = map[string]string{"id": "bot@s.whatsapp.net"}
		case "send":
			resp["payload"] = map[string]string{"message_id": "srv-1"}
		case "group_members":
			resp["payload"] = map[string]any{"members": []map[string]any{
				{"id": "a", "is_admin": true},
				{"id": "b"},
			}}
		case "remove":
			delete(resp, "ok")
			resp["error"] = map[string]string{"code": "forbidden", "message": "not an admin"}
		}
		fb.write(resp)
	}
}

func (fb *fakeBridge) write(v any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.NoError(fb.t, fb.conn.WriteJSON(v))
}

func (fb *fakeBridge) methods() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []string
	for _, c := range fb.calls {
		out = append(out, c.Method)
	}
	return out
}

func startBridge(t *testing.T) (*Transport, *fakeBridge, *bus.MessageBus) {
	t.Helper()
	fb := newFakeBridge(t)
	mb := bus.NewMessageBus()
	tr := New(mb, Options{URL: fb.url(), CallTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() {
		_ = tr.Stop(context.Background())
		mb.Close()
	})
	return tr, fb, mb
}

func TestStart_LearnsSelfID(t *testing.T) {
	tr, _, _ := startBridge(t)
	assert.True(t, tr.IsRunning())
	assert.Equal(t, "bot@s.whatsapp.net", tr.SelfID())
	assert.Equal(t, DefaultName, tr.Name())
}

func TestRequests_RoundTrip(t *testing.T) {
	tr, fb, _ := startBridge(t)
	ctx := context.Background()

	h, err := tr.SendMessage(ctx, "g1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", h.MessageID)

	members, err := tr.GetGroupMembers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.True(t, members[0].IsAdmin)
	assert.False(t, members[1].IsAdmin)

	require.NoError(t, tr.DeleteMessage(ctx, "g1", "m1", "b"))
	require.NoError(t, tr.MuteMember(ctx, "g1", "b", 5*time.Minute))
	require.NoError(t, tr.React(ctx, "g1", "m1", "👍"))

	err = tr.RemoveMember(ctx, "g1", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an admin")

	assert.Equal(t, []string{"whoami", "send", "group_members", "delete", "mute", "react", "remove"}, fb.methods())
}

func TestEvents_PublishedToBus(t *testing.T) {
	_, fb, mb := startBridge(t)
	<-fb.ready

	fb.write(map[string]any{
		"type":  "event",
		"event": "message",
		"payload": map[string]any{
			"chat_id":     "g1",
			"sender_id":   "b",
			"sender_name": "Bob",
			"message_id":  "m9",
			"content":     "/ping",
			"is_group":    true,
		},
	})
	fb.write(map[string]any{"type": "event", "event": "typing", "payload": map[string]any{"chat_id": "g1"}})
	fb.write(map[string]any{"type": "event", "event": "status", "payload": map[string]any{"chat_id": "status@broadcast", "sender_id": "c"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	batch, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	require.Len(t, batch, 1)
	ev := batch[0]
	assert.Equal(t, DefaultName, ev.Channel)
	assert.Equal(t, "g1", ev.ChatID)
	assert.Equal(t, "Bob", ev.SenderName)
	assert.Equal(t, bus.EventMessage, ev.Kind)
	assert.True(t, ev.IsGroup())

	batch, ok = mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, bus.EventStatus, batch[0].Kind)
	assert.False(t, batch[0].IsGroup())
}

func TestCall_NotConnected(t *testing.T) {
	tr := New(bus.NewMessageBus(), Options{URL: "ws://127.0.0.1:1"})
	_, err := tr.SendMessage(context.Background(), "c", "x")
	assert.ErrorIs(t, err, errNotConnected)
}

func TestToInboundEvent_RejectsMissingChat(t *testing.T) {
	tr := New(bus.NewMessageBus(), Options{})
	_, ok := tr.toInboundEvent(frame{Type: "event", Event: "message", Payload: json.RawMessage(`{"content":"x"}`)})
	assert.False(t, ok)

	ev, ok := tr.toInboundEvent(frame{Type: "event", Event: "button", Payload: json.RawMessage(`{"chat_id":"c","button_id":"/ping","from_me":true}`)})
	require.True(t, ok)
	assert.Equal(t, bus.EventButton, ev.Kind)
	assert.Equal(t, "/ping", ev.ButtonID)
	assert.True(t, ev.IsFromSelf)
}
