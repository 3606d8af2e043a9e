// Package bridge connects to a websocket bridge that relays a chat network
// (for example a WhatsApp multi-device bridge) as JSON request, response and
// event frames.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

const (
	DefaultName        = "bridge"
	defaultCallTimeout = 30 * time.Second
	maxBackoff         = 30 * time.Second
)

var errNotConnected = errors.New("bridge not connected")

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *frameError     `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *frameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// messageEvent is the payload of a "message" or "status" event.
type messageEvent struct {
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	MessageID  string `json:"message_id"`
	Content    string `json:"content"`
	IsGroup    bool   `json:"is_group"`
	FromMe     bool   `json:"from_me"`
	MentionsMe bool   `json:"mentions_me"`
	ReplyToMe  bool   `json:"reply_to_me"`
	ButtonID   string `json:"button_id"`
}

type Options struct {
	Name      string
	URL       string
	AllowFrom []string
	// CallTimeout bounds a request waiting for its response.
	CallTimeout time.Duration
}

type Transport struct {
	*transport.BaseTransport
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu      sync.Mutex // guards conn and writes
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan frame
	pendMu  sync.Mutex

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(mb *bus.MessageBus, opts Options) *Transport {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Transport{
		BaseTransport: transport.NewBaseTransport(name, mb, opts.AllowFrom),
		url:           opts.URL,
		timeout:       timeout,
		dialer:        websocket.DefaultDialer,
		pending:       make(map[string]chan frame),
	}
}

// Start dials the bridge once and keeps the connection alive in the
// background, redialing with backoff after it drops.
func (t *Transport) Start(ctx context.Context) error {
	t.runCtx, t.cancel = context.WithCancel(context.Background())
	if err := t.connect(ctx); err != nil {
		t.cancel()
		return err
	}
	t.SetRunning(true)

	t.wg.Add(1)
	go t.supervise(t.runCtx)
	return nil
}

func (t *Transport) Stop(context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	t.SetRunning(false)
	return nil
}

func (t *Transport) connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(t.runCtx, conn, done)

	var who struct {
		ID string `json:"id"`
	}
	if err := t.call(ctx, "whoami", nil, &who); err != nil {
		_ = conn.Close()
		return fmt.Errorf("whoami: %w", err)
	}
	t.SetSelfID(who.ID)
	logger.InfoCF("transport."+t.Name(), "Connected to bridge", map[string]any{
		"url":  t.url,
		"self": who.ID,
	})
	return nil
}

func (t *Transport) supervise(ctx context.Context) {
	defer t.wg.Done()
	backoff := time.Second
	for {
		t.mu.Lock()
		done := t.done
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-done:
		}

		logger.WarnCF("transport."+t.Name(), "Bridge connection lost", map[string]any{"retry_in": backoff.String()})
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err := t.connect(ctx); err != nil {
			logger.ErrorCF("transport."+t.Name(), "Bridge reconnect failed", map[string]any{"error": err.Error()})
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer t.wg.Done()
	defer close(done)
	defer t.failPending()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.DebugCF("transport."+t.Name(), "Bridge read loop ended", map[string]any{"error": err.Error()})
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.WarnCF("transport."+t.Name(), "Malformed bridge frame", map[string]any{"error": err.Error()})
			continue
		}
		switch f.Type {
		case "res":
			t.pendMu.Lock()
			ch, ok := t.pending[f.ID]
			delete(t.pending, f.ID)
			t.pendMu.Unlock()
			if ok {
				ch <- f
			}
		case "event":
			if ev, ok := t.toInboundEvent(f); ok {
				t.HandleEvents(ctx, ev)
			}
		}
	}
}

func (t *Transport) failPending() {
	t.pendMu.Lock()
	defer t.pendMu.Unlock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

func (t *Transport) toInboundEvent(f frame) (bus.InboundEvent, bool) {
	var kind bus.EventKind
	switch f.Event {
	case "message":
		kind = bus.EventMessage
	case "status":
		kind = bus.EventStatus
	case "button":
		kind = bus.EventButton
	default:
		return bus.InboundEvent{}, false
	}
	var m messageEvent
	if err := json.Unmarshal(f.Payload, &m); err != nil || m.ChatID == "" {
		return bus.InboundEvent{}, false
	}
	peer := bus.Peer{Kind: bus.PeerDirect, ID: m.ChatID}
	if m.IsGroup {
		peer.Kind = bus.PeerGroup
	}
	return bus.InboundEvent{
		ChatID:       m.ChatID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		MessageID:    m.MessageID,
		Content:      m.Content,
		Kind:         kind,
		ButtonID:     m.ButtonID,
		Peer:         peer,
		IsFromSelf:   m.FromMe,
		MentionsSelf: m.MentionsMe,
		ReplyToSelf:  m.ReplyToMe,
		Raw:          m,
	}, true
}

// call sends a request frame and decodes the response payload into out.
func (t *Transport) call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	ch := make(chan frame, 1)
	t.pendMu.Lock()
	t.pending[id] = ch
	t.pendMu.Unlock()
	forget := func() {
		t.pendMu.Lock()
		delete(t.pending, id)
		t.pendMu.Unlock()
	}

	data, err := json.Marshal(frame{Type: "req", ID: id, Method: method, Params: params})
	if err != nil {
		forget()
		return err
	}

	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		forget()
		return errNotConnected
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.mu.Unlock()
	if err != nil {
		forget()
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return errNotConnected
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if !resp.OK {
			return fmt.Errorf("%s rejected", method)
		}
		if out != nil && len(resp.Payload) > 0 {
			return json.Unmarshal(resp.Payload, out)
		}
		return nil
	case <-timer.C:
		forget()
		return fmt.Errorf("timeout waiting for %s response", method)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

func (t *Transport) SendMessage(ctx context.Context, chatID, content string) (transport.MessageHandle, error) {
	var out struct {
		MessageID string `json:"message_id"`
	}
	err := t.call(ctx, "send", map[string]string{"chat_id": chatID, "content": content}, &out)
	if err != nil {
		return transport.MessageHandle{}, err
	}
	return transport.MessageHandle{ChatID: chatID, MessageID: out.MessageID}, nil
}

func (t *Transport) GetGroupMembers(ctx context.Context, groupID string) ([]transport.Member, error) {
	var out struct {
		Members []struct {
			ID      string `json:"id"`
			IsAdmin bool   `json:"is_admin"`
		} `json:"members"`
	}
	if err := t.call(ctx, "group_members", map[string]string{"group_id": groupID}, &out); err != nil {
		return nil, err
	}
	members := make([]transport.Member, 0, len(out.Members))
	for _, m := range out.Members {
		members = append(members, transport.Member{ID: m.ID, IsAdmin: m.IsAdmin})
	}
	return members, nil
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID, senderID string) error {
	return t.call(ctx, "delete", map[string]string{
		"chat_id":    chatID,
		"message_id": messageID,
		"sender_id":  senderID,
	}, nil)
}

func (t *Transport) RemoveMember(ctx context.Context, groupID, userID string) error {
	return t.call(ctx, "remove", map[string]string{"group_id": groupID, "user_id": userID}, nil)
}

func (t *Transport) MuteMember(ctx context.Context, groupID, userID string, d time.Duration) error {
	return t.call(ctx, "mute", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"seconds":  int(d.Seconds()),
	}, nil)
}

func (t *Transport) React(ctx context.Context, chatID, messageID, emoji string) error {
	return t.call(ctx, "react", map[string]string{
		"chat_id":    chatID,
		"message_id": messageID,
		"emoji":      emoji,
	}, nil)
}

var _ transport.Transport = (*Transport)(nil)
